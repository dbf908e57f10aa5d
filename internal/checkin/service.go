package checkin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"nfccheckin/internal/queue"
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	RoleOrder RoleOrder
	// Location is the wall clock visits are stamped in.
	Location *time.Location
	Clock    func() time.Time
	// Events receives a message per recorded visit; nil disables publishing.
	Events    queue.Queue
	Live      LiveCounter
	DumpLimit int
	Logger    *slog.Logger
}

// Service implements badge check-in, duplicate detection and reporting.
type Service struct {
	repo      *Repository
	roles     RoleOrder
	loc       *time.Location
	now       func() time.Time
	events    queue.Queue
	live      LiveCounter
	dumpLimit int
	log       *slog.Logger
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, opts Options) *Service {
	s := &Service{
		repo:      repo,
		roles:     opts.RoleOrder,
		loc:       opts.Location,
		now:       opts.Clock,
		events:    opts.Events,
		live:      opts.Live,
		dumpLimit: opts.DumpLimit,
		log:       opts.Logger,
	}
	if len(s.roles) == 0 {
		s.roles = RoleOrder{"Staff", "Student", "Guest", "VIP"}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.dumpLimit <= 0 {
		s.dumpLimit = 500
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func normalizeScan(tagID, label string) (string, string, error) {
	tagID = strings.TrimSpace(tagID)
	label = strings.TrimSpace(label)
	if tagID == "" {
		return "", "", invalid("NFC ID required")
	}
	if label == "" {
		label = UnknownTerminal
	}
	return tagID, label, nil
}

// RecordVisit appends a visit for tagID under label. terminal is the
// authenticated scanner identity, empty when scanners are anonymous.
func (s *Service) RecordVisit(ctx context.Context, tagID, label, terminal string) error {
	tagID, label, err := normalizeScan(tagID, label)
	if err != nil {
		return err
	}
	v := Visit{At: s.stamp(), TagID: tagID, Label: label, Terminal: terminal}
	if err := s.repo.InsertVisit(ctx, v); err != nil {
		return storage("Insert failed", err)
	}
	s.publish(ctx, v)
	return nil
}

// Lookup reports whether tagID was already seen under label and resolves
// its registrant. The duplicate check and the registry read are independent
// statements; concurrent scans of the same pair may both see no duplicate.
func (s *Service) Lookup(ctx context.Context, tagID, label string) (LookupResult, error) {
	tagID, label, err := normalizeScan(tagID, label)
	if err != nil {
		return LookupResult{}, err
	}
	return s.lookup(ctx, s.repo, tagID, label)
}

func (s *Service) lookup(ctx context.Context, repo *Repository, tagID, label string) (LookupResult, error) {
	prior, err := repo.CountVisits(ctx, tagID, label)
	if err != nil {
		return LookupResult{}, storage("Duplicate check failed", err)
	}
	reg, err := repo.GetRegistrant(ctx, tagID)
	if err != nil {
		return LookupResult{}, storage("Lookup failed", err)
	}
	if reg == nil {
		return LookupResult{}, ErrNotFound
	}

	res := LookupResult{Registrant: *reg, IsDuplicate: prior > 0, Label: label}
	if res.IsDuplicate {
		res.Message = "Already checked in at " + label
	} else {
		res.Message = "Check-in successful at " + label
	}
	return res, nil
}

// CheckIn performs the duplicate check, registry read and visit insert in a
// single transaction. The visit is kept even for unknown tags, in which
// case ErrNotFound is returned after commit.
func (s *Service) CheckIn(ctx context.Context, tagID, label, terminal string) (LookupResult, error) {
	tagID, label, err := normalizeScan(tagID, label)
	if err != nil {
		return LookupResult{}, err
	}

	v := Visit{At: s.stamp(), TagID: tagID, Label: label, Terminal: terminal}
	var res LookupResult
	var lookupErr error
	err = s.repo.InTx(ctx, func(tx *Repository) error {
		res, lookupErr = s.lookup(ctx, tx, tagID, label)
		if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
			return lookupErr
		}
		if err := tx.InsertVisit(ctx, v); err != nil {
			return storage("Insert failed", err)
		}
		return nil
	})
	if err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			return LookupResult{}, err
		}
		return LookupResult{}, storage("Check-in failed", err)
	}
	s.publish(ctx, v)
	return res, lookupErr
}

// CountVisits returns how many visits were logged under label.
func (s *Service) CountVisits(ctx context.Context, label string) (int, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == UnknownTerminal {
		return 0, invalid("Terminal ID missing")
	}
	n, err := s.repo.CountByLabel(ctx, label)
	if err != nil {
		return 0, storage("Query failed", err)
	}
	return n, nil
}

// ReportRoles counts visits for event and timeSlot per registrant role.
func (s *Service) ReportRoles(ctx context.Context, event, timeSlot string) (RoleReport, error) {
	event, timeSlot = strings.TrimSpace(event), strings.TrimSpace(timeSlot)
	if event == "" || timeSlot == "" {
		return RoleReport{}, invalid(`Invalid input. Both "event" and "timeSlot" are required.`)
	}

	counts, err := s.repo.RoleCounts(ctx, ComposeLabel(event, timeSlot))
	if err != nil {
		return RoleReport{}, storage("Role report failed", err)
	}
	s.roles.Sort(counts)

	rep := RoleReport{Event: event, TimeSlot: timeSlot, Roles: counts}
	if rep.Roles == nil {
		rep.Roles = []RoleCount{}
	}
	for _, c := range counts {
		rep.Total += c.Count
	}
	return rep, nil
}

// ReportUsers lists who checked in for event and timeSlot with the given
// role, most recent first.
func (s *Service) ReportUsers(ctx context.Context, event, timeSlot, role string) ([]Attendee, error) {
	event, timeSlot, role = strings.TrimSpace(event), strings.TrimSpace(timeSlot), strings.TrimSpace(role)
	if event == "" || timeSlot == "" || role == "" {
		return nil, invalid(`Invalid input. "event", "timeSlot", and "role" are required.`)
	}

	rows, err := s.repo.AttendeesByRole(ctx, ComposeLabel(event, timeSlot), role)
	if err != nil {
		return nil, storage("Names report failed", err)
	}
	out := make([]Attendee, 0, len(rows))
	for _, r := range rows {
		out = append(out, Attendee{
			Name:      r.Name,
			Timestamp: r.At.Format("15:04:05"),
			Group:     r.Details,
		})
	}
	return out, nil
}

// likeEscaper quotes LIKE wildcards so a terminal matches as a literal
// substring.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ReportByTerminal groups visits whose label contains terminal by raw label.
//
// Deprecated: labels now carry event and slot; use ReportRoles.
func (s *Service) ReportByTerminal(ctx context.Context, terminal string) (TerminalReport, error) {
	terminal = strings.TrimSpace(terminal)
	if terminal == "" {
		return TerminalReport{}, invalid("Missing terminal_id parameter.")
	}

	counts, err := s.repo.LabelCounts(ctx, "%"+likeEscaper.Replace(terminal)+"%")
	if err != nil {
		return TerminalReport{}, storage("Terminal report failed", err)
	}
	rep := TerminalReport{Terminal: terminal, Labels: counts}
	if rep.Labels == nil {
		rep.Labels = []LabelCount{}
	}
	for i := range counts {
		counts[i].Label = strings.TrimSpace(counts[i].Label)
		rep.Total += counts[i].Count
	}
	return rep, nil
}

// ListVisits dumps the most recent visits.
func (s *Service) ListVisits(ctx context.Context) ([]Visit, error) {
	visits, err := s.repo.ListVisits(ctx, s.dumpLimit)
	if err != nil {
		return nil, storage("Log dump failed", err)
	}
	if visits == nil {
		visits = []Visit{}
	}
	return visits, nil
}

// LiveCount returns the running counter for label kept by the visit consumer.
func (s *Service) LiveCount(ctx context.Context, label string) (int64, error) {
	label = strings.TrimSpace(label)
	if label == "" || label == UnknownTerminal {
		return 0, invalid("Terminal ID missing")
	}
	if s.live == nil {
		return 0, ErrLiveUnavailable
	}
	n, err := s.live.Count(ctx, label)
	if err != nil {
		return 0, storage("Live counter failed", err)
	}
	return n, nil
}

func (s *Service) stamp() time.Time {
	// whole seconds, in the configured zone
	return s.now().In(s.loc).Truncate(time.Second)
}

func (s *Service) publish(ctx context.Context, v Visit) {
	if s.events == nil {
		return
	}
	msg, err := newVisitMessage(v)
	if err != nil {
		s.log.Error("encode visit event", "error", err)
		return
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		s.log.Warn("visit event publish failed", "tag", v.TagID, "label", v.Label, "error", err)
	}
}
