package policy

import (
	"fmt"
	"sync/atomic"
)

// RoomAccess controls how room-scoped events for rooms the sender has not
// joined are treated.
type RoomAccess string

const (
	// RoomAccessOpen routes such events to whatever members the room has.
	RoomAccessOpen RoomAccess = "open"
	// RoomAccessMember drops them and replies with a NOT_IN_ROOM error.
	RoomAccessMember RoomAccess = "member"
)

// RateLimit bounds inbound events per connection.
type RateLimit struct {
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
}

// Policy holds the hub tunables that can change without a restart.
type Policy struct {
	RoomAccess      RoomAccess `yaml:"room_access"`
	AnonymousName   string     `yaml:"anonymous_name"`
	MaxChatLength   int        `yaml:"max_chat_length"`
	EvictEmptyRooms bool       `yaml:"evict_empty_rooms"`
	Rate            RateLimit  `yaml:"rate"`
}

// Default returns the policy used when no file is configured.
func Default() *Policy {
	return &Policy{
		RoomAccess:      RoomAccessOpen,
		AnonymousName:   "Anonymous",
		MaxChatLength:   1000,
		EvictEmptyRooms: true,
		Rate: RateLimit{
			EventsPerSecond: 120,
			Burst:           240,
		},
	}
}

// Validate checks a policy for values the hub cannot work with.
func (p *Policy) Validate() error {
	switch p.RoomAccess {
	case RoomAccessOpen, RoomAccessMember:
	default:
		return fmt.Errorf("invalid room_access %q (must be 'open' or 'member')", p.RoomAccess)
	}
	if p.AnonymousName == "" {
		return fmt.Errorf("anonymous_name must not be empty")
	}
	if p.MaxChatLength < 0 {
		return fmt.Errorf("max_chat_length must be >= 0")
	}
	if p.Rate.EventsPerSecond <= 0 {
		return fmt.Errorf("rate.events_per_second must be > 0")
	}
	if p.Rate.Burst < 1 {
		return fmt.Errorf("rate.burst must be >= 1")
	}
	return nil
}

// Store holds the active policy. Safe for concurrent use.
type Store struct {
	current atomic.Pointer[Policy]
}

// NewStore creates a store seeded with p, or Default() when p is nil.
func NewStore(p *Policy) *Store {
	if p == nil {
		p = Default()
	}
	s := &Store{}
	s.current.Store(p)
	return s
}

// Current returns the active policy. Callers must not mutate it.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Set replaces the active policy.
func (s *Store) Set(p *Policy) {
	s.current.Store(p)
}
