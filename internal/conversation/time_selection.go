package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SlotLabelLayout is the display format for offered slots ("3:04 PM").
const SlotLabelLayout = "3:04 PM"

// MaxOfferedSlots caps how many slots a single day offers the customer.
const MaxOfferedSlots = 5

var (
	clockTimeRE    = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(a\.?m\.?|p\.?m\.?)?`)
	meridiemTimeRE = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(a\.?m\.?|p\.?m\.?)(?:[^a-z]|$)`)
	optionRE       = regexp.MustCompile(`(?i)^(?:option|number|#|opci[oó]n|n[uú]mero)\s*(\d+)$`)
)

// timeToken is a parsed time mention. hasMeridiem is false for bare
// "H:MM" mentions, which may mean either half of the day.
type timeToken struct {
	hour        int
	minute      int
	hasMeridiem bool
}

// parseTimeToken returns the first time-of-day mention in text.
func parseTimeToken(text string) (timeToken, bool) {
	var (
		best    timeToken
		bestPos = -1
	)

	if loc := clockTimeRE.FindStringSubmatchIndex(text); loc != nil {
		hour, _ := strconv.Atoi(text[loc[2]:loc[3]])
		minute, _ := strconv.Atoi(text[loc[4]:loc[5]])
		tok := timeToken{hour: hour, minute: minute}
		if loc[6] >= 0 {
			tok = applyMeridiem(tok, text[loc[6]:loc[7]])
		}
		if validToken(tok) {
			best, bestPos = tok, loc[0]
		}
	}
	if loc := meridiemTimeRE.FindStringSubmatchIndex(text); loc != nil && (bestPos < 0 || loc[0] < bestPos) {
		hour, _ := strconv.Atoi(text[loc[2]:loc[3]])
		tok := applyMeridiem(timeToken{hour: hour}, text[loc[4]:loc[5]])
		if validToken(tok) {
			best, bestPos = tok, loc[0]
		}
	}
	return best, bestPos >= 0
}

func applyMeridiem(tok timeToken, meridiem string) timeToken {
	meridiem = strings.ToLower(strings.ReplaceAll(meridiem, ".", ""))
	if tok.hour < 1 || tok.hour > 12 {
		tok.hour = -1
		return tok
	}
	switch meridiem {
	case "pm":
		if tok.hour != 12 {
			tok.hour += 12
		}
	case "am":
		if tok.hour == 12 {
			tok.hour = 0
		}
	}
	tok.hasMeridiem = true
	return tok
}

func validToken(tok timeToken) bool {
	return tok.hour >= 0 && tok.hour < 24 && tok.minute >= 0 && tok.minute < 60
}

func (tok timeToken) matches(hour, minute int) bool {
	if tok.minute != minute {
		return false
	}
	if tok.hasMeridiem || tok.hour > 12 {
		return tok.hour == hour
	}
	return tok.hour == hour || tok.hour+12 == hour || (tok.hour == 12 && hour == 0)
}

// labelClock parses a slot label back into hour and minute.
func labelClock(label string) (int, int, bool) {
	tok, ok := parseTimeToken(label)
	if !ok {
		return 0, 0, false
	}
	return tok.hour, tok.minute, true
}

// MatchSlot picks the offered slot the customer named. Explicit
// "option N" picks by position; otherwise the first time mention is
// compared against each slot label in offer order.
func MatchSlot(message string, slots []Slot) (Slot, bool) {
	message = strings.TrimSpace(message)
	if message == "" || len(slots) == 0 {
		return Slot{}, false
	}

	if m := optionRE.FindStringSubmatch(message); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= len(slots) {
			return slots[n-1], true
		}
	}

	tok, ok := parseTimeToken(message)
	if !ok {
		return Slot{}, false
	}
	for _, slot := range slots {
		hour, minute, ok := labelClock(slot.Label)
		if !ok {
			hour, minute = slot.Start.Hour(), slot.Start.Minute()
		}
		if tok.matches(hour, minute) {
			return slot, true
		}
	}
	return Slot{}, false
}

// SlotLabels returns the display labels of slots in order.
func SlotLabels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot.Label)
	}
	return out
}

// FormatSlotLabel renders t in loc using SlotLabelLayout.
func FormatSlotLabel(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(SlotLabelLayout)
}
