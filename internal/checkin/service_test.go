package checkin_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"nfccheckin/internal/checkin"
	"nfccheckin/internal/queue"
	"nfccheckin/internal/store"
	"nfccheckin/internal/testutil"
)

// stepClock returns a clock that advances by one second per reading.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(time.Second)
		return t
	}
}

func newService(t *testing.T, opts checkin.Options) (*checkin.Service, *store.DB) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	if _, err := store.Seed(context.Background(), db, store.DefaultRegistrants); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if opts.Clock == nil {
		opts.Clock = stepClock(time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC))
	}
	opts.Logger = testutil.DiscardLogger()
	return checkin.NewService(checkin.NewRepository(db), opts), db
}

func TestLookupBeforeAndAfterRecord(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	res, err := svc.Lookup(ctx, "ID101", "IMC - Morning")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.IsDuplicate {
		t.Fatal("first lookup should not be a duplicate")
	}
	if res.Message != "Check-in successful at IMC - Morning" {
		t.Errorf("message = %q", res.Message)
	}

	if err := svc.RecordVisit(ctx, "ID101", "IMC - Morning", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	res, err = svc.Lookup(ctx, "ID101", "IMC - Morning")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !res.IsDuplicate {
		t.Fatal("expected duplicate after record")
	}
	if res.Message != "Already checked in at IMC - Morning" {
		t.Errorf("message = %q", res.Message)
	}
	want := [4]any{"ID101", "Alice Johnson", "Department A", "Staff"}
	if res.Registrant.Row() != want {
		t.Errorf("row = %v, want %v", res.Registrant.Row(), want)
	}
	if res.Label != "IMC - Morning" {
		t.Errorf("label = %q", res.Label)
	}
}

func TestDuplicateIsScopedToLabel(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	if err := svc.RecordVisit(ctx, "ID202", "IMC - Morning", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	res, err := svc.Lookup(ctx, "ID202", "IMC - Lunch")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.IsDuplicate {
		t.Error("visit under another label must not count as duplicate")
	}
}

func TestLookupUnknownTag(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	if err := svc.RecordVisit(ctx, "UNKNOWN_TAG", "IMC - Morning", ""); err != nil {
		t.Fatalf("record unknown tag: %v", err)
	}
	_, err := svc.Lookup(ctx, "UNKNOWN_TAG", "IMC - Morning")
	if !errors.Is(err, checkin.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	var ve *checkin.ValidationError
	if err := svc.RecordVisit(ctx, "   ", "IMC - Morning", ""); !errors.As(err, &ve) {
		t.Errorf("RecordVisit: expected ValidationError, got %v", err)
	}
	if _, err := svc.Lookup(ctx, "", "x"); !errors.As(err, &ve) {
		t.Errorf("Lookup: expected ValidationError, got %v", err)
	}
	if _, err := svc.CountVisits(ctx, checkin.UnknownTerminal); !errors.As(err, &ve) {
		t.Errorf("CountVisits sentinel: expected ValidationError, got %v", err)
	}
	if _, err := svc.CountVisits(ctx, ""); !errors.As(err, &ve) {
		t.Errorf("CountVisits empty: expected ValidationError, got %v", err)
	}
	if _, err := svc.ReportRoles(ctx, "IMC", ""); !errors.As(err, &ve) {
		t.Errorf("ReportRoles: expected ValidationError, got %v", err)
	}
	if _, err := svc.ReportUsers(ctx, "IMC", "Morning", ""); !errors.As(err, &ve) {
		t.Errorf("ReportUsers: expected ValidationError, got %v", err)
	}
}

func TestMissingLabelDefaultsToUnknownTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	if err := svc.RecordVisit(ctx, "ID303", "", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	visits, err := svc.ListVisits(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visits) != 1 || visits[0].Label != checkin.UnknownTerminal {
		t.Fatalf("unexpected visits %+v", visits)
	}
}

func TestCountVisits(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	for _, tag := range []string{"ID101", "ID202"} {
		if err := svc.RecordVisit(ctx, tag, "IMC - Morning", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := svc.RecordVisit(ctx, "ID303", "IMC - Lunch", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, err := svc.CountVisits(ctx, "IMC - Morning")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestReportRoles(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, checkin.Options{})
	testutil.AddRegistrant(t, db, "ID404", "Dana White", "Press", "Media")
	testutil.AddRegistrant(t, db, "ID505", "Evan Stone", "Sponsors", "VIP")
	testutil.AddRegistrant(t, db, "ID606", "Fay Lee", "Press", "Band")

	scans := []string{"ID505", "ID404", "ID202", "ID101", "ID101", "ID606", "ID303", "NOT_REGISTERED"}
	for _, tag := range scans {
		if err := svc.RecordVisit(ctx, tag, "Pre-IMC 2 Nov - Lunch", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := svc.RecordVisit(ctx, "ID101", "Pre-IMC 2 Nov - Dinner", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	rep, err := svc.ReportRoles(ctx, "Pre-IMC 2 Nov", "Lunch")
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	want := []string{"Staff:2", "Student:1", "Guest:1", "VIP:1", "Band:1", "Media:1"}
	if got := buckets(rep.Roles); !reflect.DeepEqual(got, want) {
		t.Errorf("roles = %v\nwant %v", got, want)
	}

	sum := 0
	for _, r := range rep.Roles {
		sum += r.Count
	}
	if rep.Total != sum || rep.Total != 7 {
		t.Errorf("total = %d, sum = %d, want 7", rep.Total, sum)
	}
}

// buckets renders role counts as role:count, with <nil> for a missing role.
func buckets(counts []checkin.RoleCount) []string {
	out := make([]string, 0, len(counts))
	for _, c := range counts {
		name := "<nil>"
		if c.Role != nil {
			name = *c.Role
		}
		out = append(out, fmt.Sprintf("%s:%d", name, c.Count))
	}
	return out
}

func TestReportRolesNullRole(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, checkin.Options{})
	testutil.AddRegistrant(t, db, "ID707", "Gus Pike", "Walk-in", "")

	for _, tag := range []string{"ID707", "ID707", "ID101"} {
		if err := svc.RecordVisit(ctx, tag, "Day 2 - PM", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	rep, err := svc.ReportRoles(ctx, "Day 2", "PM")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got, want := buckets(rep.Roles), []string{"Staff:1", "<nil>:2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("roles = %v, want %v", got, want)
	}

	res, err := svc.Lookup(ctx, "ID707", "Day 2 - PM")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if res.Registrant.Role != nil || res.Registrant.Row()[3] != nil {
		t.Errorf("role = %v, row = %v", res.Registrant.Role, res.Registrant.Row())
	}
}

func TestReportRolesCustomOrder(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, checkin.Options{RoleOrder: checkin.RoleOrder{"Competition", "Activity", "Staff"}})
	testutil.AddRegistrant(t, db, "C1", "Comp One", "Team 1", "Competition")
	testutil.AddRegistrant(t, db, "A1", "Act One", "Team 2", "Activity")

	for _, tag := range []string{"ID101", "A1", "C1"} {
		if err := svc.RecordVisit(ctx, tag, "Day 1 - AM", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	rep, err := svc.ReportRoles(ctx, "Day 1", "AM")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var got []string
	for _, r := range rep.Roles {
		got = append(got, r.RoleName())
	}
	if want := []string{"Competition", "Activity", "Staff"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestReportRolesEmpty(t *testing.T) {
	svc, _ := newService(t, checkin.Options{})
	rep, err := svc.ReportRoles(context.Background(), "Nothing", "Here")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Total != 0 || rep.Roles == nil || len(rep.Roles) != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestReportUsersNewestFirst(t *testing.T) {
	ctx := context.Background()
	bkk := time.FixedZone("ICT", 7*3600)
	svc, db := newService(t, checkin.Options{
		Location: bkk,
		Clock:    stepClock(time.Date(2025, 11, 2, 5, 30, 0, 0, time.UTC)),
	})
	testutil.AddRegistrant(t, db, "ID111", "Gina Park", "Department Z", "Staff")

	for _, tag := range []string{"ID101", "ID202", "ID111"} {
		if err := svc.RecordVisit(ctx, tag, "IMC - Lunch", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	users, err := svc.ReportUsers(ctx, "IMC", "Lunch", "Staff")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	want := []checkin.Attendee{
		{Name: "Gina Park", Timestamp: "12:30:02", Group: "Department Z"},
		{Name: "Alice Johnson", Timestamp: "12:30:00", Group: "Department A"},
	}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("users = %+v\nwant %+v", users, want)
	}
}

func TestReportUsersExactRoleMatch(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, checkin.Options{})
	testutil.AddRegistrant(t, db, "S2", "Sam", "Ops", "Staff Lead")

	for _, tag := range []string{"ID101", "S2"} {
		if err := svc.RecordVisit(ctx, tag, "IMC - Lunch", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	users, err := svc.ReportUsers(ctx, "IMC", "Lunch", "Staff")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Alice Johnson" {
		t.Errorf("users = %+v", users)
	}
}

func TestReportByTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	labels := []string{"Gate A - Morning", "Gate A - Morning", "Gate A - Lunch", "Gate B - Morning"}
	for i, label := range labels {
		tag := []string{"ID101", "ID202", "ID303", "ID101"}[i]
		if err := svc.RecordVisit(ctx, tag, label, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rep, err := svc.ReportByTerminal(ctx, "  Gate A ")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Terminal != "Gate A" || rep.Total != 3 {
		t.Errorf("terminal=%q total=%d", rep.Terminal, rep.Total)
	}
	want := []checkin.LabelCount{
		{Label: "Gate A - Morning", Count: 2},
		{Label: "Gate A - Lunch", Count: 1},
	}
	if !reflect.DeepEqual(rep.Labels, want) {
		t.Errorf("labels = %+v", rep.Labels)
	}
}

func TestReportByTerminalMatchesWildcardsLiterally(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	for _, label := range []string{"GateX1 - AM", "Gate_1 - AM", "100% Hall - PM", "Bang!Room - PM"} {
		if err := svc.RecordVisit(ctx, "ID101", label, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	cases := map[string][]string{
		"Gate_1": {"Gate_1 - AM"},
		"%":      {"100% Hall - PM"},
		"_":      {"Gate_1 - AM"},
		"Bang!R": {"Bang!Room - PM"},
		"0%!":    nil,
	}
	for terminal, want := range cases {
		rep, err := svc.ReportByTerminal(ctx, terminal)
		if err != nil {
			t.Fatalf("%q: %v", terminal, err)
		}
		var got []string
		for _, l := range rep.Labels {
			got = append(got, l.Label)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%q matched %v, want %v", terminal, got, want)
		}
	}
}

func TestCheckInTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, checkin.Options{})

	first, err := svc.CheckIn(ctx, "ID202", "IMC - Morning", "scanner-1")
	if err != nil {
		t.Fatalf("first checkin: %v", err)
	}
	if first.IsDuplicate {
		t.Error("first checkin flagged duplicate")
	}

	second, err := svc.CheckIn(ctx, "ID202", "IMC - Morning", "scanner-1")
	if err != nil {
		t.Fatalf("second checkin: %v", err)
	}
	if !second.IsDuplicate {
		t.Error("second checkin should be duplicate")
	}

	_, err = svc.CheckIn(ctx, "NOPE", "IMC - Morning", "scanner-1")
	if !errors.Is(err, checkin.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := svc.CountVisits(ctx, "IMC - Morning")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3 (unknown tags are still logged)", n)
	}

	visits, _ := svc.ListVisits(ctx)
	if visits[0].Terminal != "scanner-1" {
		t.Errorf("terminal = %q", visits[0].Terminal)
	}
}

func TestStorageErrorOnClosedDB(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, checkin.Options{})
	_ = db.Close()

	err := svc.RecordVisit(ctx, "ID101", "IMC - Morning", "")
	var se *checkin.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "Insert failed" {
		t.Errorf("op = %q", se.Op)
	}
}

func TestVisitEventsFeedLiveCounter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(16)
	counters := store.NewMemoryCounters()
	svc, _ := newService(t, checkin.Options{Events: q, Live: counters})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = checkin.ConsumeVisits(ctx, q, counters, testutil.DiscardLogger())
	}()

	for i := 0; i < 3; i++ {
		if err := svc.RecordVisit(ctx, "ID101", "IMC - Morning", ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := svc.LiveCount(ctx, "IMC - Morning")
		if err != nil {
			t.Fatalf("live count: %v", err)
		}
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("live count stuck at %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestLiveCountWithoutBackend(t *testing.T) {
	svc, _ := newService(t, checkin.Options{})
	_, err := svc.LiveCount(context.Background(), "IMC - Morning")
	if !errors.Is(err, checkin.ErrLiveUnavailable) {
		t.Fatalf("expected ErrLiveUnavailable, got %v", err)
	}
}
