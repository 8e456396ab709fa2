package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrProfileNotFound is returned by stores when a contact has no profile yet.
	ErrProfileNotFound = errors.New("conversation: profile not found")
	// ErrVersionConflict means another writer updated the profile first.
	ErrVersionConflict = errors.New("conversation: profile version conflict")
	// ErrCollaborator marks failures of the CRM, calendar, messaging or store
	// collaborators. Callers should answer with the hold template.
	ErrCollaborator = errors.New("conversation: collaborator failure")
	// ErrInvalidMessage is returned for inbound messages without a sender.
	ErrInvalidMessage = errors.New("conversation: inbound message missing phone")
)

func collaboratorError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaborator, op, err)
}
