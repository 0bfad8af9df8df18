package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/internal/notify"
)

// memRecords mirrors the store's claim guard so engine tests exercise the
// same race semantics the SQL enforces.
type memRecords struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*Record
}

func newMemRecords(recs ...*Record) *memRecords {
	m := &memRecords{recs: map[uuid.UUID]*Record{}}
	for _, r := range recs {
		cp := *r
		if cp.ChannelsAttempted == nil {
			cp.ChannelsAttempted = []string{}
		}
		m.recs[cp.ID] = &cp
	}
	return m
}

func (m *memRecords) ListDue(_ context.Context, now time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Record
	for _, r := range m.recs {
		if r.Confirmed || r.ExhaustedAt != nil || r.ScheduledFor.After(now) {
			continue
		}
		due = append(due, m.snapshot(r))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (m *memRecords) ClaimStep(_ context.Context, id uuid.UUID, channel string, expectedAttempts int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok || r.Confirmed || r.Attempted(channel) || len(r.ChannelsAttempted) != expectedAttempts {
		return false, nil
	}
	r.ChannelsAttempted = append(r.ChannelsAttempted, channel)
	t := at
	r.LastAttemptAt = &t
	return true, nil
}

func (m *memRecords) ReleaseStep(_ context.Context, id uuid.UUID, channel string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil
	}
	kept := []string{}
	for _, c := range r.ChannelsAttempted {
		if c != channel {
			kept = append(kept, c)
		}
	}
	r.ChannelsAttempted = kept
	return nil
}

func (m *memRecords) MarkSent(_ context.Context, id uuid.UUID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recs[id]; ok {
		r.Sent = true
	}
	return nil
}

func (m *memRecords) MarkExhausted(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok || r.ExhaustedAt != nil || r.Confirmed {
		return false, nil
	}
	t := at
	r.ExhaustedAt = &t
	return true, nil
}

func (m *memRecords) GetRecord(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := m.snapshot(r)
	return &cp, nil
}

func (m *memRecords) CreateRecord(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ChannelsAttempted == nil {
		r.ChannelsAttempted = []string{}
	}
	cp := *r
	m.recs[cp.ID] = &cp
	return nil
}

func (m *memRecords) Confirm(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok || r.Confirmed {
		return false, nil
	}
	r.Confirmed = true
	t := at
	r.ConfirmedAt = &t
	return true, nil
}

func (m *memRecords) snapshot(r *Record) Record {
	cp := *r
	cp.ChannelsAttempted = append([]string{}, r.ChannelsAttempted...)
	return cp
}

func (m *memRecords) confirm(id uuid.UUID, at time.Time) {
	_, _ = m.Confirm(context.Background(), id, at)
}

func (m *memRecords) get(t *testing.T, id uuid.UUID) Record {
	t.Helper()
	rec, err := m.GetRecord(context.Background(), id)
	if err != nil {
		t.Fatalf("record %s missing: %v", id, err)
	}
	return *rec
}

type fakeRules struct {
	rules map[ReminderType][]EscalationRule
	err   error
}

func (f *fakeRules) ListRules(_ context.Context, t ReminderType) ([]EscalationRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules[t], nil
}

type fakeResolver struct {
	err   error
	calls int
}

func (f *fakeResolver) ResolveRecipient(_ context.Context, _ string, _ uuid.UUID) (*directory.Recipient, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &directory.Recipient{
		Name:     "Dana Whitfield",
		Email:    "dana@example.com",
		Phone:    "+15550100",
		WhatsApp: "+15550100",
	}, nil
}

type ladderSend struct {
	channel notify.Channel
	name    string
	body    string
}

type ladderSender struct {
	sent     []ladderSend
	failures map[notify.Channel]int
}

func (f *ladderSender) Send(_ context.Context, rec directory.Recipient, ch notify.Channel, msg notify.Message) error {
	if f.failures[ch] > 0 {
		f.failures[ch]--
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, ladderSend{channel: ch, name: rec.Name, body: msg.Body})
	return nil
}

func (f *ladderSender) channels() []string {
	var out []string
	for _, s := range f.sent {
		out = append(out, string(s.channel))
	}
	return out
}

func appointmentLadder(waits ...int) map[ReminderType][]EscalationRule {
	channels := []string{"email", "sms", "whatsapp", "voice"}
	rules := make([]EscalationRule, 0, len(waits))
	for i, w := range waits {
		rules = append(rules, EscalationRule{
			ID: uuid.New(), Type: TypeAppointment, Step: i + 1,
			Channel: channels[i], WaitHours: w, Active: true,
		})
	}
	return map[ReminderType][]EscalationRule{TypeAppointment: rules}
}

func ladderRecord(base time.Time) *Record {
	return &Record{
		ID:           uuid.New(),
		Type:         TypeAppointment,
		TargetKind:   directory.KindAppointment,
		TargetID:     uuid.New(),
		ScheduledFor: base,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func TestTickClimbsLadder(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0, 2, 2)}, &fakeResolver{}, sender, nil, nil)

	now := base
	e.now = func() time.Time { return now }

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if summary.Attempted != 1 {
		t.Fatalf("expected immediate first step, got %+v", summary)
	}

	now = base.Add(time.Hour)
	if summary, _ = e.Tick(context.Background()); summary.Attempted != 0 {
		t.Fatalf("second step wait not elapsed, got %+v", summary)
	}

	now = base.Add(2 * time.Hour)
	if summary, _ = e.Tick(context.Background()); summary.Attempted != 1 {
		t.Fatalf("expected second step at +2h, got %+v", summary)
	}

	now = base.Add(4 * time.Hour)
	if summary, _ = e.Tick(context.Background()); summary.Attempted != 1 {
		t.Fatalf("expected third step at +4h, got %+v", summary)
	}

	now = base.Add(6 * time.Hour)
	summary, _ = e.Tick(context.Background())
	if summary.Attempted != 0 || summary.Exhausted != 1 {
		t.Fatalf("expected exhaustion after last step, got %+v", summary)
	}

	now = base.Add(7 * time.Hour)
	if summary, _ = e.Tick(context.Background()); summary.Exhausted != 0 {
		t.Fatalf("exhaustion must be recorded once, got %+v", summary)
	}

	got := sender.channels()
	want := []string{"email", "sms", "whatsapp"}
	if len(got) != len(want) {
		t.Fatalf("expected sends %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sends %v, got %v", want, got)
		}
	}

	final := records.get(t, rec.ID)
	if !final.Sent {
		t.Error("expected sent flag after successful steps")
	}
	if final.ExhaustedAt == nil {
		t.Error("expected exhausted timestamp")
	}
	if final.Confirmed {
		t.Error("exhausted record must stay unconfirmed")
	}
}

func TestTickHaltsOnConfirmation(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0, 0, 0)}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	if summary, _ := e.Tick(context.Background()); summary.Attempted != 1 {
		t.Fatal("expected first step")
	}

	records.confirm(rec.ID, base.Add(time.Minute))

	summary, _ := e.Tick(context.Background())
	if summary.Attempted != 0 || summary.Exhausted != 0 {
		t.Fatalf("confirmed record must halt mid-ladder, got %+v", summary)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(sender.sent))
	}
	if final := records.get(t, rec.ID); final.ExhaustedAt != nil {
		t.Error("confirmed record must not be marked exhausted")
	}
}

func TestStepConfirmedUnderClaim(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	records.confirm(rec.ID, base)

	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0)}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	// A stale read from before the confirmation landed.
	stale := *rec
	stale.ChannelsAttempted = []string{}

	var summary TickSummary
	e.step(context.Background(), &stale, appointmentLadder(0)[TypeAppointment], base, &summary)

	if summary.ConfirmedSkips != 1 {
		t.Fatalf("expected confirmed skip, got %+v", summary)
	}
	if len(sender.sent) != 0 {
		t.Fatal("confirmed record must not be sent to")
	}
}

func TestTickNeverRepeatsChannel(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0, 0)}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if _, err := e.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	got := sender.channels()
	if len(got) != 2 || got[0] != "email" || got[1] != "sms" {
		t.Fatalf("each channel must be attempted once, got %v", got)
	}
	final := records.get(t, rec.ID)
	if len(final.ChannelsAttempted) != 2 {
		t.Fatalf("unexpected attempts %v", final.ChannelsAttempted)
	}
	if final.ExhaustedAt == nil {
		t.Error("expected exhaustion after both steps")
	}
}

func TestTickSendFailureReleasesClaim(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{failures: map[notify.Channel]int{notify.ChannelEmail: 1}}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0)}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	summary, _ := e.Tick(context.Background())
	if summary.Errors != 1 || summary.Attempted != 0 {
		t.Fatalf("expected failed attempt, got %+v", summary)
	}
	mid := records.get(t, rec.ID)
	if len(mid.ChannelsAttempted) != 0 {
		t.Fatalf("failed claim must be released, got %v", mid.ChannelsAttempted)
	}
	if mid.Sent {
		t.Error("failed send must not mark sent")
	}

	summary, _ = e.Tick(context.Background())
	if summary.Attempted != 1 || summary.Errors != 0 {
		t.Fatalf("released step must be retried, got %+v", summary)
	}
	final := records.get(t, rec.ID)
	if !final.Sent || len(final.ChannelsAttempted) != 1 {
		t.Fatalf("expected successful retry, got sent=%v attempts=%v", final.Sent, final.ChannelsAttempted)
	}
}

func TestTickSkipsInactiveRules(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	rules := appointmentLadder(0, 0)
	rules[TypeAppointment][0].Active = false
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{rules: rules}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	if _, err := e.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got := sender.channels()
	if len(got) != 1 || got[0] != "sms" {
		t.Fatalf("inactive step must be skipped, got %v", got)
	}
}

func TestTickNoRulesExhausts(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if summary.Exhausted != 1 {
		t.Fatalf("record with no ladder must exhaust, got %+v", summary)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no sends expected")
	}
}

func TestTickResolverFailureReleasesClaim(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	resolver := &fakeResolver{err: errors.New("owner purged")}
	e := NewEngine(records, &fakeRules{rules: appointmentLadder(0)}, resolver, sender, nil, nil)
	e.now = func() time.Time { return base }

	summary, _ := e.Tick(context.Background())
	if summary.Errors != 1 {
		t.Fatalf("expected resolver error counted, got %+v", summary)
	}
	final := records.get(t, rec.ID)
	if len(final.ChannelsAttempted) != 0 {
		t.Fatalf("claim must be released when recipient resolution fails, got %v", final.ChannelsAttempted)
	}
}

func TestTickRuleLoadFailure(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	e := NewEngine(records, &fakeRules{err: errors.New("rules table gone")}, &fakeResolver{}, sender, nil, nil)
	e.now = func() time.Time { return base }

	summary, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if summary.Errors != 1 {
		t.Fatalf("expected rule load error counted, got %+v", summary)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no sends expected when rules cannot load")
	}
	if final := records.get(t, rec.ID); final.ExhaustedAt != nil {
		t.Error("rule load failure must not exhaust the record")
	}
}

func TestTickWaitMeasuredFromCreation(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := ladderRecord(base)
	records := newMemRecords(rec)
	sender := &ladderSender{}
	rules := map[ReminderType][]EscalationRule{
		TypeAppointment: {{ID: uuid.New(), Type: TypeAppointment, Step: 1, Channel: "email", WaitHours: 3, Active: true}},
	}
	e := NewEngine(records, &fakeRules{rules: rules}, &fakeResolver{}, sender, nil, nil)

	now := base.Add(time.Hour)
	e.now = func() time.Time { return now }
	if summary, _ := e.Tick(context.Background()); summary.Attempted != 0 {
		t.Fatalf("first step wait runs from creation, got %+v", summary)
	}

	now = base.Add(3 * time.Hour)
	if summary, _ := e.Tick(context.Background()); summary.Attempted != 1 {
		t.Fatalf("expected attempt once creation wait elapsed, got %+v", summary)
	}
}
