package runtime

import (
	"sync/atomic"

	"github.com/drblury/statusrelay/internal/runtime/channel"
)

// State is the process-wide relay state. The polling loop is its only writer
// for counters and the last record, the shutdown coordinator its only writer
// for the online flag. Readers may observe slightly stale values.
type State struct {
	instanceID string

	online       atomic.Bool
	openPollings atomic.Int64
	processed    atomic.Int64
	discarded    atomic.Int64
	last         atomic.Pointer[channel.Record]
}

// Counters is a point-in-time copy of the relay counters.
type Counters struct {
	OpenPollings      int64
	ProcessedMessages int64
	DiscardedMessages int64
}

// Fields renders the counters with the key names of the stats log line.
func (c Counters) Fields() map[string]any {
	return map[string]any{
		"openPollings":      c.OpenPollings,
		"processedMessages": c.ProcessedMessages,
		"discardedMessages": c.DiscardedMessages,
	}
}

// NewState returns an online state for instanceID.
func NewState(instanceID string) *State {
	s := &State{instanceID: instanceID}
	s.online.Store(true)
	return s
}

func (s *State) InstanceID() string { return s.instanceID }

func (s *State) Online() bool { return s.online.Load() }

// GoOffline clears the online flag. It reports whether this call flipped it.
func (s *State) GoOffline() bool {
	return s.online.CompareAndSwap(true, false)
}

// BeginPoll records a poll call about to start and returns the new count.
func (s *State) BeginPoll() int64 {
	return s.openPollings.Add(1)
}

// EndPoll records a returned poll call. The count never drops below zero.
func (s *State) EndPoll() int64 {
	for {
		current := s.openPollings.Load()
		if current <= 0 {
			return 0
		}
		if s.openPollings.CompareAndSwap(current, current-1) {
			return current - 1
		}
	}
}

func (s *State) OpenPollings() int64 { return s.openPollings.Load() }

func (s *State) MarkProcessed() { s.processed.Add(1) }

func (s *State) MarkDiscarded() { s.discarded.Add(1) }

// StoreRecord replaces the last processed record.
func (s *State) StoreRecord(r channel.Record) {
	s.last.Store(&r)
}

// LastRecord returns the last processed record, if any.
func (s *State) LastRecord() (channel.Record, bool) {
	r := s.last.Load()
	if r == nil {
		return channel.Record{}, false
	}
	return *r, true
}

func (s *State) Counters() Counters {
	return Counters{
		OpenPollings:      s.openPollings.Load(),
		ProcessedMessages: s.processed.Load(),
		DiscardedMessages: s.discarded.Load(),
	}
}
