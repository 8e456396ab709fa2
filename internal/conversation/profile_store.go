package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ProfileStore persists profiles with optimistic concurrency. Upsert
// treats profile.Version as the version that was read: zero means "must
// not exist yet". On success the stored version is Version+1 and the
// passed profile is updated to match; otherwise ErrVersionConflict.
type ProfileStore interface {
	Get(ctx context.Context, contactID string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, contactID string) error
}

// MemoryProfileStore keeps profiles in process. Intended for development
// and tests; it does not survive restarts.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string][]byte
}

var _ ProfileStore = (*MemoryProfileStore)(nil)

// NewMemoryProfileStore returns an empty store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string][]byte)}
}

func (s *MemoryProfileStore) Get(_ context.Context, contactID string) (*Profile, error) {
	s.mu.Lock()
	raw, ok := s.profiles[contactID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrProfileNotFound
	}
	return decodeProfile(raw)
}

func (s *MemoryProfileStore) Upsert(_ context.Context, profile *Profile) error {
	if err := validateForWrite(profile); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if raw, ok := s.profiles[profile.ContactID]; ok {
		stored, err := decodeProfile(raw)
		if err != nil {
			return err
		}
		current = stored.Version
	}
	if current != profile.Version {
		return ErrVersionConflict
	}

	next := profile.Clone()
	next.Version = current + 1
	raw, err := encodeProfile(&next)
	if err != nil {
		return err
	}
	s.profiles[profile.ContactID] = raw
	profile.Version = next.Version
	return nil
}

func (s *MemoryProfileStore) Delete(_ context.Context, contactID string) error {
	s.mu.Lock()
	delete(s.profiles, contactID)
	s.mu.Unlock()
	return nil
}

func validateForWrite(profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("conversation: profile cannot be nil")
	}
	if strings.TrimSpace(profile.ContactID) == "" {
		return fmt.Errorf("conversation: profile contact id required")
	}
	if !profile.Step.Valid() {
		return fmt.Errorf("conversation: invalid step %q", profile.Step)
	}
	return nil
}

func encodeProfile(profile *Profile) ([]byte, error) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to encode profile: %w", err)
	}
	return raw, nil
}

func decodeProfile(raw []byte) (*Profile, error) {
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode profile: %w", err)
	}
	return &profile, nil
}
