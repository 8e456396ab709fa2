package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
)

// nextOccurrence returns midnight of the next day matching weekday in loc.
// Today counts when it matches; past slots are filtered later.
func nextOccurrence(now time.Time, weekday time.Weekday, loc *time.Location) time.Time {
	local := now.In(loc)
	offset := (int(weekday) - int(local.Weekday()) + 7) % 7
	day := local.AddDate(0, 0, offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// ListAvailableSlots asks GHL for free slots on the next occurrence of day.
func (c *Client) ListAvailableSlots(ctx context.Context, day time.Weekday) ([]conversation.Slot, error) {
	if c.calendarID == "" {
		return nil, errors.New("ghl: calendar id is required")
	}
	now := c.now()
	start := nextOccurrence(now, day, c.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)

	query := url.Values{}
	query.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))
	query.Set("timezone", c.loc.String())

	var raw map[string]json.RawMessage
	path := "/calendars/" + url.PathEscape(c.calendarID) + "/free-slots"
	if err := c.invoke(ctx, "calendar.free_slots", http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, fmt.Errorf("ghl: list slots: %w", err)
	}

	starts, err := parseFreeSlots(raw)
	if err != nil {
		return nil, fmt.Errorf("ghl: list slots: %w", err)
	}

	slots := make([]conversation.Slot, 0, len(starts))
	seen := make(map[int64]struct{}, len(starts))
	for _, s := range starts {
		s = s.In(c.loc)
		if s.Before(now) || s.Weekday() != day {
			continue
		}
		if _, dup := seen[s.Unix()]; dup {
			continue
		}
		seen[s.Unix()] = struct{}{}
		slots = append(slots, conversation.Slot{
			Start: s,
			End:   s.Add(c.duration),
			Label: conversation.FormatSlotLabel(s, c.loc),
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// parseFreeSlots accepts the date-keyed shape
// {"2024-06-11": {"slots": ["2024-06-11T10:00:00-05:00"]}, "traceId": "..."}.
func parseFreeSlots(raw map[string]json.RawMessage) ([]time.Time, error) {
	var out []time.Time
	for key, value := range raw {
		if _, err := time.Parse(time.DateOnly, key); err != nil {
			continue
		}
		var day struct {
			Slots []string `json:"slots"`
		}
		if err := json.Unmarshal(value, &day); err != nil {
			return nil, fmt.Errorf("decode slots for %s: %w", key, err)
		}
		for _, s := range day.Slots {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("parse slot %q: %w", s, err)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

type appointmentResponse struct {
	ID                string `json:"id"`
	AppointmentStatus string `json:"appointmentStatus"`
	Event             *struct {
		ID                string `json:"id"`
		AppointmentStatus string `json:"appointmentStatus"`
	} `json:"event"`
}

type contactEvent struct {
	ID                string `json:"id"`
	CalendarID        string `json:"calendarId"`
	StartTime         string `json:"startTime"`
	AppointmentStatus string `json:"appointmentStatus"`
	Deleted           bool   `json:"deleted"`
}

// contactEventLayout is the zone-less form GHL uses for some event times.
const contactEventLayout = "2006-01-02 15:04:05"

func (c *Client) parseEventTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(contactEventLayout, v, c.loc)
}

// findAppointment returns the contact's live event on the configured
// calendar starting at start, if any.
func (c *Client) findAppointment(ctx context.Context, contactID string, start time.Time) (conversation.Appointment, bool, error) {
	var out struct {
		Events []contactEvent `json:"events"`
	}
	path := "/contacts/" + url.PathEscape(contactID) + "/appointments"
	if err := c.invoke(ctx, "contacts.appointments", http.MethodGet, path, nil, nil, &out); err != nil {
		return conversation.Appointment{}, false, fmt.Errorf("ghl: list contact appointments: %w", err)
	}
	for _, ev := range out.Events {
		if ev.Deleted || ev.ID == "" || ev.CalendarID != c.calendarID {
			continue
		}
		switch strings.ToLower(ev.AppointmentStatus) {
		case "cancelled", "invalid":
			continue
		}
		at, err := c.parseEventTime(ev.StartTime)
		if err != nil {
			c.logger.Warn("skip contact event with unreadable start", "event_id", ev.ID, "start", ev.StartTime)
			continue
		}
		if at.Equal(start) {
			status := ev.AppointmentStatus
			if status == "" {
				status = "confirmed"
			}
			return conversation.Appointment{ID: ev.ID, Status: status}, true, nil
		}
	}
	return conversation.Appointment{}, false, nil
}

// CreateAppointment books req.Slot on the configured calendar. An event the
// contact already holds for the same start is returned instead of a new one,
// so a replayed booking never creates a second appointment.
func (c *Client) CreateAppointment(ctx context.Context, req conversation.AppointmentRequest) (conversation.Appointment, error) {
	if c.calendarID == "" {
		return conversation.Appointment{}, errors.New("ghl: calendar id is required")
	}
	if strings.TrimSpace(req.ContactID) == "" {
		return conversation.Appointment{}, errors.New("ghl: contact id is required")
	}
	if req.Slot.Start.IsZero() {
		return conversation.Appointment{}, errors.New("ghl: appointment start is required")
	}

	existing, found, err := c.findAppointment(ctx, req.ContactID, req.Slot.Start)
	if err != nil {
		return conversation.Appointment{}, fmt.Errorf("ghl: create appointment: %w", err)
	}
	if found {
		c.logger.Info("appointment already exists", "contact_id", req.ContactID, "appointment_id", existing.ID)
		existing.Existing = true
		return existing, nil
	}

	end := req.Slot.End
	if !end.After(req.Slot.Start) {
		end = req.Slot.Start.Add(c.duration)
	}
	body := map[string]any{
		"calendarId":        c.calendarID,
		"locationId":        c.locationID,
		"contactId":         req.ContactID,
		"startTime":         req.Slot.Start.In(c.loc).Format(time.RFC3339),
		"endTime":           end.In(c.loc).Format(time.RFC3339),
		"title":             req.Title,
		"appointmentStatus": "confirmed",
	}
	if req.Notes != "" {
		body["notes"] = req.Notes
	}

	var out appointmentResponse
	if err := c.invokeWith(ctx, retryRejected, "calendar.create_event", http.MethodPost, "/calendars/events", nil, body, &out); err != nil {
		// A timeout or 5xx may still have created the event.
		if appt, ok := c.recoverAppointment(ctx, req, err); ok {
			return appt, nil
		}
		return conversation.Appointment{}, fmt.Errorf("ghl: create appointment: %w", err)
	}
	appt := conversation.Appointment{ID: out.ID, Status: out.AppointmentStatus}
	if appt.ID == "" && out.Event != nil {
		appt.ID = out.Event.ID
		appt.Status = out.Event.AppointmentStatus
	}
	if appt.ID == "" {
		return conversation.Appointment{}, errors.New("ghl: create appointment: response missing id")
	}
	if appt.Status == "" {
		appt.Status = "confirmed"
	}
	return appt, nil
}

// recoverAppointment looks for the event after an ambiguous create failure.
func (c *Client) recoverAppointment(ctx context.Context, req conversation.AppointmentRequest, cause error) (conversation.Appointment, bool) {
	var apiErr *APIError
	if errors.As(cause, &apiErr) && apiErr.StatusCode < 500 {
		return conversation.Appointment{}, false
	}
	if ctx.Err() != nil {
		return conversation.Appointment{}, false
	}
	appt, found, err := c.findAppointment(ctx, req.ContactID, req.Slot.Start)
	if err != nil || !found {
		if err != nil {
			c.logger.Warn("appointment lookup after failed create", "contact_id", req.ContactID, "error", err)
		}
		return conversation.Appointment{}, false
	}
	c.logger.Warn("create appointment failed but the event exists", "contact_id", req.ContactID, "appointment_id", appt.ID, "error", cause)
	return appt, true
}
