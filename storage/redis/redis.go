// Package redis provides a Redis implementation of the membership.Store
// interface. Partial updates and subscription index maintenance use Lua
// scripts for transaction safety.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voxnote/membership/pkg/membership"
)

// Store implements membership.Store using Redis
type Store struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "membership:")
	KeyPrefix string

	// MemberTTL is the TTL for member keys (0 = no expiration)
	MemberTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "membership:",
		MemberTTL: 0, // Members don't expire
	}
}

// New creates a new Redis store adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "membership:"
	}

	s := &Store{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Store) loadScripts() {
	// Insert a member only if absent, and register the subscription index.
	s.scripts["insert"] = redis.NewScript(`
		local memberKey = KEYS[1]
		local subKey = KEYS[2]
		local data = ARGV[1]
		local userID = ARGV[2]
		local ttl = tonumber(ARGV[3])

		local created = redis.call('SETNX', memberKey, data)
		if created == 0 then
			return 'exists'
		end

		if ttl > 0 then
			redis.call('EXPIRE', memberKey, ttl)
		end

		if subKey ~= "" then
			redis.call('SET', subKey, userID)
			if ttl > 0 then
				redis.call('EXPIRE', subKey, ttl)
			end
		end

		return 'ok'
	`)

	// Replace a member record and move the subscription index from the
	// old subscription id to the new one.
	s.scripts["replace"] = redis.NewScript(`
		local memberKey = KEYS[1]
		local oldSubKey = KEYS[2]
		local newSubKey = KEYS[3]
		local data = ARGV[1]
		local userID = ARGV[2]
		local ttl = tonumber(ARGV[3])

		redis.call('SET', memberKey, data)
		if ttl > 0 then
			redis.call('EXPIRE', memberKey, ttl)
		end

		if oldSubKey ~= "" and oldSubKey ~= newSubKey then
			redis.call('DEL', oldSubKey)
		end

		if newSubKey ~= "" then
			redis.call('SET', newSubKey, userID)
			if ttl > 0 then
				redis.call('EXPIRE', newSubKey, ttl)
			end
		end

		return 'ok'
	`)
}

// GetMember implements membership.Store
func (s *Store) GetMember(ctx context.Context, userID string) (*membership.Member, error) {
	key := s.memberKey(userID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, membership.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	var m membership.Member
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal member: %w", err)
	}

	return &m, nil
}

// InsertMemberIfAbsent implements membership.Store
func (s *Store) InsertMemberIfAbsent(ctx context.Context, m *membership.Member) error {
	if m == nil || m.ID == "" {
		return membership.ErrInvalidMember
	}

	record := *m
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	subKey := ""
	if record.SubscriptionID != "" {
		subKey = s.subscriptionKey(record.SubscriptionID)
	}

	_, err = s.scripts["insert"].Run(
		ctx,
		s.client,
		[]string{s.memberKey(record.ID), subKey},
		string(data),
		record.ID,
		s.ttlSeconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to execute insert script: %w", err)
	}

	return nil
}

// UpdateMemberByID implements membership.Store
func (s *Store) UpdateMemberByID(ctx context.Context, userID string, upd membership.MemberUpdate) error {
	current, err := s.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	return s.replace(ctx, current, upd)
}

// UpdateMemberBySubscription implements membership.Store
func (s *Store) UpdateMemberBySubscription(ctx context.Context, subscriptionID string, upd membership.MemberUpdate) error {
	if subscriptionID == "" {
		return membership.ErrMemberNotFound
	}

	userID, err := s.client.Get(ctx, s.subscriptionKey(subscriptionID)).Result()
	if err == redis.Nil {
		return membership.ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve subscription: %w", err)
	}

	current, err := s.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	return s.replace(ctx, current, upd)
}

// replace applies the update to the loaded member and writes it back,
// keeping the subscription index in sync.
func (s *Store) replace(ctx context.Context, current *membership.Member, upd membership.MemberUpdate) error {
	oldSubscriptionID := current.SubscriptionID

	if upd.Plan != nil {
		current.Plan = *upd.Plan
	}
	if upd.IsOnTrial != nil {
		current.IsOnTrial = *upd.IsOnTrial
	}
	if upd.SubscriptionID != nil {
		current.SubscriptionID = *upd.SubscriptionID
	}
	current.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal member: %w", err)
	}

	oldSubKey := ""
	if oldSubscriptionID != "" {
		oldSubKey = s.subscriptionKey(oldSubscriptionID)
	}
	newSubKey := ""
	if current.SubscriptionID != "" {
		newSubKey = s.subscriptionKey(current.SubscriptionID)
	}

	_, err = s.scripts["replace"].Run(
		ctx,
		s.client,
		[]string{s.memberKey(current.ID), oldSubKey, newSubKey},
		string(data),
		current.ID,
		s.ttlSeconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("failed to execute replace script: %w", err)
	}

	return nil
}

func (s *Store) ttlSeconds() int64 {
	if s.config.MemberTTL > 0 {
		return int64(s.config.MemberTTL.Seconds())
	}
	return 0
}

// memberKey generates the Redis key for a member record
func (s *Store) memberKey(userID string) string {
	return fmt.Sprintf("%smember:%s", s.config.KeyPrefix, userID)
}

// subscriptionKey generates the Redis key mapping a subscription id to a user id
func (s *Store) subscriptionKey(subscriptionID string) string {
	return fmt.Sprintf("%ssubscription:%s", s.config.KeyPrefix, subscriptionID)
}

// Close closes the Redis client connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
