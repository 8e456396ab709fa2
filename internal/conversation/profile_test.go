package conversation

import (
	"reflect"
	"testing"
	"time"
)

func TestProfileApplyIsCopyOnWrite(t *testing.T) {
	budget := 400.0
	day := time.Tuesday
	p := Profile{ContactID: "c", Step: StepBudget, CustomerBudget: &budget, PreferredDay: &day}

	newBudget := 900.0
	next := p.Apply(Update{CustomerBudget: &newBudget})
	if *p.CustomerBudget != 400 {
		t.Fatalf("original mutated: %v", *p.CustomerBudget)
	}
	if *next.CustomerBudget != 900 {
		t.Fatalf("update not applied: %v", *next.CustomerBudget)
	}
	*next.PreferredDay = time.Friday
	if *p.PreferredDay != time.Tuesday {
		t.Fatal("clone shares the preferred day pointer")
	}
}

func TestProfileLanguageSetOnce(t *testing.T) {
	es := LanguageSpanish
	en := LanguageEnglish
	p := Profile{}.Apply(Update{Language: &es})
	p = p.Apply(Update{Language: &en})
	if p.Language != LanguageSpanish {
		t.Fatalf("language changed to %q", p.Language)
	}
}

func TestProfileBookingResultSetOnce(t *testing.T) {
	p := Profile{}.Apply(Update{BookingResult: &BookingResult{Success: true, BookingID: "a"}})
	p = p.Apply(Update{BookingResult: &BookingResult{Success: false}})
	if !p.BookingResult.Success || p.BookingResult.BookingID != "a" {
		t.Fatalf("booking result overwritten: %+v", p.BookingResult)
	}
}

func TestProfileClearDay(t *testing.T) {
	day := time.Tuesday
	slots := testSlots(time.Tuesday, "10:00 AM")
	p := Profile{PreferredDay: &day, PreferredTime: "10:00 AM", AvailableSlots: slots, SelectedSlot: &slots[0]}
	next := p.Apply(Update{ClearDay: true})
	if next.PreferredDay != nil || next.PreferredTime != "" || next.AvailableSlots != nil || next.SelectedSlot != nil {
		t.Fatalf("day not cleared: %+v", next)
	}
	if p.PreferredDay == nil {
		t.Fatal("original mutated")
	}
}

func TestProfileAdvance(t *testing.T) {
	started := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 2, 9, 0, 0, 0, time.FixedZone("CDT", -5*3600))
	name := "Ana"
	p := Profile{ContactID: "c", Step: StepName, Version: 3, ConversationStarted: started}

	next := p.Advance(Transition{Next: StepGoal, Update: Update{CustomerName: &name}, Response: "hi Ana"}, now)
	if next.Step != StepGoal || next.CustomerName != "Ana" || next.LastResponse != "hi Ana" {
		t.Fatalf("unexpected profile %+v", next)
	}
	if next.Version != 3 {
		t.Fatalf("version must be left for the store, got %d", next.Version)
	}
	if !next.LastInteraction.Equal(now) || next.LastInteraction.Location() != time.UTC {
		t.Fatalf("unexpected last interaction %v", next.LastInteraction)
	}
	if !next.ConversationStarted.Equal(started) {
		t.Fatal("conversation start must not move")
	}

	stay := next.Advance(Transition{Next: Step(""), Response: "again"}, now)
	if stay.Step != StepGoal {
		t.Fatalf("empty next step should keep %s, got %s", StepGoal, stay.Step)
	}
}

func TestProfileMissingFields(t *testing.T) {
	budget := 500.0
	p := Profile{CustomerName: "Ana", CustomerBudget: &budget}
	want := []string{FieldGoal, FieldPainPoint, FieldEmail, FieldDay, FieldTime}
	if got := p.MissingFields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
}

func TestStepHelpers(t *testing.T) {
	if !StepScheduled.Terminal() || !StepSpam.Terminal() || StepTime.Terminal() {
		t.Fatal("unexpected terminal classification")
	}
	if Step("nope").Valid() || Step("nope").Index() != -1 {
		t.Fatal("unknown step should be invalid")
	}
	if StepBudget.Index() <= StepPain.Index() {
		t.Fatal("budget must come after pain")
	}
	fields := map[string]Step{
		FieldName: StepName, FieldGoal: StepGoal, FieldPainPoint: StepPain, FieldBudget: StepBudget,
		FieldEmail: StepEmail, FieldDay: StepDay, FieldTime: StepTime, "other": StepGreeting,
	}
	for field, want := range fields {
		if got := StepForField(field); got != want {
			t.Fatalf("StepForField(%s) = %s, want %s", field, got, want)
		}
	}
}

func TestUpdateEmpty(t *testing.T) {
	if !(Update{}).Empty() {
		t.Fatal("zero update should be empty")
	}
	if (Update{ClearDay: true}).Empty() {
		t.Fatal("ClearDay is a change")
	}
}
