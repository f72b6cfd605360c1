package contacts

import (
	"context"
	"errors"
	"sync"
)

var ErrGroupNotFound = errors.New("contacts: group not found")

// MemoryStore is an in-memory contact source for tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	groups map[string][]Contact
	dnc    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups: map[string][]Contact{},
		dnc:    map[string]struct{}{},
	}
}

func (s *MemoryStore) SetGroup(groupID string, members []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupID] = append([]Contact(nil), members...)
}

func (s *MemoryStore) AddToDNC(phoneNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dnc[phoneNumber] = struct{}{}
}

func (s *MemoryStore) GetContactGroupMembers(ctx context.Context, groupID string) ([]Contact, error) {
	if groupID == "" {
		return nil, errors.New("contacts: group_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return append([]Contact(nil), members...), nil
}

func (s *MemoryStore) IsOnDNC(ctx context.Context, phoneNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dnc[phoneNumber]
	return ok, nil
}
