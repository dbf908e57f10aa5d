package checkin

// Action is one of the operations a client can name on the legacy
// single-endpoint API.
type Action string

const (
	ActionLog            Action = "log"
	ActionLookup         Action = "lookup"
	ActionCheckIn        Action = "checkin"
	ActionLogs           Action = "logs"
	ActionCount          Action = "get_count"
	ActionReportRoles    Action = "get_report_roles"
	ActionReportUsers    Action = "get_report_users"
	ActionReportTerminal Action = "get_report_terminal"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionLog,
	ActionLookup,
	ActionCheckIn,
	ActionLogs,
	ActionCount,
	ActionReportRoles,
	ActionReportUsers,
	ActionReportTerminal,
}

// ParseAction maps a wire name onto an Action.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}
