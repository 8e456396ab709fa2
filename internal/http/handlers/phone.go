package handlers

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var errInvalidPhone = errors.New("invalid phone number")

// normalizeE164 parses raw in defaultRegion unless it carries a country
// code, and formats it as E.164.
func normalizeE164(raw, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "whatsapp:")
	if trimmed == "" {
		return "", errInvalidPhone
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", errInvalidPhone
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}
