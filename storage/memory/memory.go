// Package memory provides an in-memory implementation of the membership.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/voxnote/membership/pkg/membership"
)

// Store implements membership.Store using an in-memory map.
type Store struct {
	mu      sync.RWMutex
	members map[string]*membership.Member
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		members: make(map[string]*membership.Member),
	}
}

// GetMember implements membership.Store.
func (s *Store) GetMember(ctx context.Context, userID string) (*membership.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[userID]
	if !ok {
		return nil, membership.ErrMemberNotFound
	}

	// Return a copy to prevent external mutations.
	memberCopy := *m
	return &memberCopy, nil
}

// InsertMemberIfAbsent implements membership.Store.
func (s *Store) InsertMemberIfAbsent(ctx context.Context, m *membership.Member) error {
	if m == nil || m.ID == "" {
		return membership.ErrInvalidMember
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[m.ID]; ok {
		return nil
	}

	memberCopy := *m
	now := time.Now().UTC()
	memberCopy.CreatedAt = now
	memberCopy.UpdatedAt = now
	s.members[m.ID] = &memberCopy
	return nil
}

// UpdateMemberByID implements membership.Store.
func (s *Store) UpdateMemberByID(ctx context.Context, userID string, upd membership.MemberUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[userID]
	if !ok {
		return membership.ErrMemberNotFound
	}
	applyUpdate(m, upd)
	return nil
}

// UpdateMemberBySubscription implements membership.Store.
func (s *Store) UpdateMemberBySubscription(ctx context.Context, subscriptionID string, upd membership.MemberUpdate) error {
	if subscriptionID == "" {
		return membership.ErrMemberNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.members {
		if m.SubscriptionID == subscriptionID {
			applyUpdate(m, upd)
			return nil
		}
	}
	return membership.ErrMemberNotFound
}

func applyUpdate(m *membership.Member, upd membership.MemberUpdate) {
	if upd.Plan != nil {
		m.Plan = *upd.Plan
	}
	if upd.IsOnTrial != nil {
		m.IsOnTrial = *upd.IsOnTrial
	}
	if upd.SubscriptionID != nil {
		m.SubscriptionID = *upd.SubscriptionID
	}
	m.UpdatedAt = time.Now().UTC()
}
