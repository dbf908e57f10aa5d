package checkin

import (
	"sort"
	"time"
)

// UnknownTerminal is the context label recorded when a scanner sends none.
const UnknownTerminal = "UNKNOWN_TERMINAL"

// LabelSeparator joins an event name and a time slot into a context label.
const LabelSeparator = " - "

// ComposeLabel builds the context label a scanner writes for event and slot.
func ComposeLabel(event, timeSlot string) string {
	return event + LabelSeparator + timeSlot
}

// Registrant is a provisioned badge holder.
type Registrant struct {
	TagID   string
	Name    string
	Details string
	// Role is nil when the registry holds no role for the tag.
	Role *string
}

// Row returns the registrant in the legacy positional form
// [tag, name, details, role]. A missing role is a nil element.
func (r Registrant) Row() [4]any {
	var role any
	if r.Role != nil {
		role = *r.Role
	}
	return [4]any{r.TagID, r.Name, r.Details, role}
}

// Visit is one recorded scan.
type Visit struct {
	ID       int64
	At       time.Time
	TagID    string
	Label    string
	Terminal string
}

// LookupResult is the outcome of resolving a scanned tag.
type LookupResult struct {
	Registrant  Registrant
	IsDuplicate bool
	Label       string
	Message     string
}

// RoleCount is one bucket of the role report.
type RoleCount struct {
	Role  *string `json:"role"`
	Count int     `json:"count"`
}

// RoleName is the bucket's role, or "" for registrants without one.
func (c RoleCount) RoleName() string {
	if c.Role == nil {
		return ""
	}
	return *c.Role
}

// RoleReport aggregates visits for one event and time slot by registry role.
type RoleReport struct {
	Event    string
	TimeSlot string
	Total    int
	Roles    []RoleCount
}

// Attendee is one row of the names report.
type Attendee struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Group     string `json:"group"`
}

// LabelCount is one bucket of the terminal report.
type LabelCount struct {
	Label string `json:"user_role"`
	Count int    `json:"total_count"`
}

// TerminalReport groups visits whose label contains a terminal substring.
type TerminalReport struct {
	Terminal string
	Total    int
	Labels   []LabelCount
}

// RoleOrder ranks known roles in reports; roles not listed sort last.
type RoleOrder []string

func (o RoleOrder) rank(role string) int {
	for i, r := range o {
		if r == role {
			return i
		}
	}
	return len(o)
}

// Sort orders counts by rank, then by role name.
func (o RoleOrder) Sort(counts []RoleCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		ri, rj := o.rank(counts[i].RoleName()), o.rank(counts[j].RoleName())
		if ri != rj {
			return ri < rj
		}
		return counts[i].RoleName() < counts[j].RoleName()
	})
}
