package ghl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
)

var (
	_ conversation.ContactService  = (*Client)(nil)
	_ conversation.CalendarService = (*Client)(nil)
)

type contactPayload struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (c contactPayload) toContact() conversation.Contact {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return conversation.Contact{ID: c.ID, Phone: c.Phone, Name: name, Email: c.Email}
}

type contactEnvelope struct {
	Contact *contactPayload `json:"contact"`
}

// duplicateError is the body GHL returns when a create collides with an
// existing contact.
type duplicateError struct {
	Meta struct {
		ContactID string `json:"contactId"`
	} `json:"meta"`
}

// FindOrCreateContact looks the phone number up and creates a contact when
// none exists.
func (c *Client) FindOrCreateContact(ctx context.Context, phone string) (conversation.Contact, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return conversation.Contact{}, errors.New("ghl: phone is required")
	}

	query := url.Values{}
	query.Set("locationId", c.locationID)
	query.Set("number", phone)
	var found contactEnvelope
	if err := c.invoke(ctx, "contacts.search", http.MethodGet, "/contacts/search/duplicate", query, nil, &found); err != nil {
		return conversation.Contact{}, fmt.Errorf("ghl: search contact: %w", err)
	}
	if found.Contact != nil && found.Contact.ID != "" {
		return found.Contact.toContact(), nil
	}

	body := map[string]any{
		"locationId": c.locationID,
		"phone":      phone,
		"source":     "whatsapp",
	}
	var created contactEnvelope
	err := c.invoke(ctx, "contacts.create", http.MethodPost, "/contacts/", nil, body, &created)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			var dup duplicateError
			if json.Unmarshal([]byte(apiErr.Body), &dup) == nil && dup.Meta.ContactID != "" {
				c.logger.Info("ghl contact already exists", "contact_id", dup.Meta.ContactID)
				return conversation.Contact{ID: dup.Meta.ContactID, Phone: phone}, nil
			}
		}
		return conversation.Contact{}, fmt.Errorf("ghl: create contact: %w", err)
	}
	if created.Contact == nil || created.Contact.ID == "" {
		return conversation.Contact{}, errors.New("ghl: create contact: response missing id")
	}
	contact := created.Contact.toContact()
	if contact.Phone == "" {
		contact.Phone = phone
	}
	c.logger.Info("ghl contact created", "contact_id", contact.ID)
	return contact, nil
}

type customFieldValue struct {
	ID    string `json:"id"`
	Value string `json:"field_value"`
}

// UpsertContact writes name, email, tags and mapped custom fields. Custom
// fields without a configured GHL id are skipped.
func (c *Client) UpsertContact(ctx context.Context, update conversation.ContactUpdate) (conversation.Contact, error) {
	if strings.TrimSpace(update.ContactID) == "" {
		return conversation.Contact{}, errors.New("ghl: contact id is required")
	}

	body := map[string]any{}
	if name := strings.TrimSpace(update.Name); name != "" {
		body["name"] = name
		first, last, _ := strings.Cut(name, " ")
		body["firstName"] = first
		if last = strings.TrimSpace(last); last != "" {
			body["lastName"] = last
		}
	}
	if email := strings.TrimSpace(update.Email); email != "" {
		body["email"] = email
	}
	if len(update.Tags) > 0 {
		body["tags"] = update.Tags
	}
	if fields := c.customFields(update.CustomFields); len(fields) > 0 {
		body["customFields"] = fields
	}
	if len(body) == 0 {
		return conversation.Contact{ID: update.ContactID}, nil
	}

	var out contactEnvelope
	path := "/contacts/" + url.PathEscape(update.ContactID)
	if err := c.invoke(ctx, "contacts.update", http.MethodPut, path, nil, body, &out); err != nil {
		return conversation.Contact{}, fmt.Errorf("ghl: update contact: %w", err)
	}
	if out.Contact == nil {
		return conversation.Contact{ID: update.ContactID, Name: update.Name, Email: update.Email}, nil
	}
	contact := out.Contact.toContact()
	if contact.ID == "" {
		contact.ID = update.ContactID
	}
	return contact, nil
}

func (c *Client) customFields(values map[string]string) []customFieldValue {
	if len(values) == 0 {
		return nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]customFieldValue, 0, len(names))
	for _, name := range names {
		id, ok := c.fieldIDs[name]
		if !ok {
			continue
		}
		out = append(out, customFieldValue{ID: id, Value: values[name]})
	}
	return out
}
