package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

var testDays = []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func testSlots(day time.Weekday, labels ...string) []Slot {
	base := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	for base.Weekday() != day {
		base = base.AddDate(0, 0, 1)
	}
	out := make([]Slot, 0, len(labels))
	for _, label := range labels {
		clock, err := time.Parse(SlotLabelLayout, label)
		if err != nil {
			panic(err)
		}
		start := base.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
		out = append(out, Slot{Start: start, End: start.Add(30 * time.Minute), Label: label})
	}
	return out
}

type fakeSlots struct {
	mu    sync.Mutex
	byDay map[time.Weekday][]Slot
	err   error
	calls []time.Weekday
}

func (f *fakeSlots) ListAvailableSlots(_ context.Context, day time.Weekday) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, day)
	if f.err != nil {
		return nil, f.err
	}
	return append([]Slot(nil), f.byDay[day]...), nil
}

type missingErr []string

func (m missingErr) Error() string           { return fmt.Sprintf("missing %v", []string(m)) }
func (m missingErr) MissingFields() []string { return []string(m) }

type fakeFinalizer struct {
	mu       sync.Mutex
	result   BookingResult
	err      error
	profiles []Profile
}

func (f *fakeFinalizer) Finalize(_ context.Context, p Profile) (BookingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, p)
	if f.err != nil {
		return BookingResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeFinalizer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

type fakeContacts struct {
	mu        sync.Mutex
	findErr   error
	updateErr error
	finds     int
	updates   []ContactUpdate
}

func (f *fakeContacts) FindOrCreateContact(_ context.Context, phone string) (Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if f.findErr != nil {
		return Contact{}, f.findErr
	}
	return Contact{ID: "contact-" + phone, Phone: phone}, nil
}

func (f *fakeContacts) UpsertContact(_ context.Context, u ContactUpdate) (Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	if f.updateErr != nil {
		return Contact{}, f.updateErr
	}
	return Contact{ID: u.ContactID}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []OutboundMessage
}

func (f *fakeSender) Send(_ context.Context, msg OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

type fakeLLM struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return LLMResponse{}, f.err
	}
	return LLMResponse{Text: f.text}, nil
}

var errBoom = errors.New("boom")

type machineFixture struct {
	machine   *Machine
	slots     *fakeSlots
	finalizer *fakeFinalizer
	catalog   *catalog.Catalog
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	cat := catalog.Default()
	slots := &fakeSlots{byDay: map[time.Weekday][]Slot{
		time.Tuesday:  testSlots(time.Tuesday, "10:00 AM", "2:00 PM", "4:30 PM"),
		time.Thursday: testSlots(time.Thursday, "9:00 AM"),
	}}
	finalizer := &fakeFinalizer{result: BookingResult{Success: true, BookingID: "evt-1"}}
	m := NewMachine(MachineConfig{
		Catalog:       cat,
		Slots:         slots,
		Finalizer:     finalizer,
		MinimumBudget: 300,
		BookableDays:  testDays,
		BusinessName:  "AI Outlet Media",
		Logger:        logging.Discard(),
	})
	return &machineFixture{machine: m, slots: slots, finalizer: finalizer, catalog: cat}
}

// run feeds messages through the machine starting at profile p, applying
// each transition the way the orchestrator does.
func (f *machineFixture) run(t *testing.T, p Profile, messages ...string) (Profile, []Transition) {
	t.Helper()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	var transitions []Transition
	for _, msg := range messages {
		tr, err := f.machine.Step(context.Background(), Input{Message: msg, Profile: p})
		if err != nil {
			t.Fatalf("step %q at %s: %v", msg, p.Step, err)
		}
		transitions = append(transitions, tr)
		p = p.Advance(tr, now)
	}
	return p, transitions
}

func render(t *testing.T, cat *catalog.Catalog, key string, lang Language, vars map[string]string) string {
	t.Helper()
	text, err := cat.Render(key, string(lang), vars)
	if err != nil {
		t.Fatalf("render %s: %v", key, err)
	}
	return text
}
