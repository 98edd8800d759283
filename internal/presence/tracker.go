package presence

import (
	"slices"
	"sync"
)

// Tracker maps live connections to participant identifiers. A participant is
// reachable while at least one connection is either advertised for them at
// connect time or explicitly registered to them.
type Tracker struct {
	mu         sync.RWMutex
	advertised map[string]string // connID -> participantID
	registered map[string]string // connID -> participantID
	byID       map[string]map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		advertised: make(map[string]string),
		registered: make(map[string]string),
		byID:       make(map[string]map[string]struct{}),
	}
}

// Connect records the identifier a connection advertised when it was opened.
func (t *Tracker) Connect(connID, participantID string) {
	if participantID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertised[connID] = participantID
	t.index(connID, participantID)
}

// Register binds a connection to a participant. A later registration on the
// same connection replaces the earlier one; the participant it displaced is
// returned when that left them with no connection.
func (t *Tracker) Register(connID, participantID string) []string {
	if participantID == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, had := t.registered[connID]
	t.registered[connID] = participantID
	t.index(connID, participantID)
	if !had || prev == participantID {
		return nil
	}
	t.reindex(connID, prev)
	if len(t.byID[prev]) > 0 {
		return nil
	}
	return []string{prev}
}

// Unregister forgets a connection and returns every participant it was bound
// to, advertised or registered, that is no longer reachable.
func (t *Tracker) Unregister(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg := t.registered[connID]
	adv := t.advertised[connID]
	delete(t.registered, connID)
	delete(t.advertised, connID)

	var lost []string
	for _, id := range []string{reg, adv} {
		if id == "" || slices.Contains(lost, id) {
			continue
		}
		t.reindex(connID, id)
		if len(t.byID[id]) == 0 {
			lost = append(lost, id)
		}
	}
	return lost
}

func (t *Tracker) IsReachable(participantID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID[participantID]) > 0
}

// ReachableSubset returns the reachable identifiers of ids, preserving order.
func (t *Tracker) ReachableSubset(ids []string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if len(t.byID[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Connections lists the live connections of a participant.
func (t *Tracker) Connections(participantID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]string, 0, len(t.byID[participantID]))
	for c := range t.byID[participantID] {
		conns = append(conns, c)
	}
	return conns
}

// ParticipantOf returns the participant bound to a connection, if any.
func (t *Tracker) ParticipantOf(connID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.registered[connID]; ok {
		return id
	}
	return t.advertised[connID]
}

func (t *Tracker) index(connID, participantID string) {
	set, ok := t.byID[participantID]
	if !ok {
		set = make(map[string]struct{})
		t.byID[participantID] = set
	}
	set[connID] = struct{}{}
}

// reindex drops connID from participantID's set unless the connection is
// still bound to that participant by the other map.
func (t *Tracker) reindex(connID, participantID string) {
	if t.registered[connID] == participantID || t.advertised[connID] == participantID {
		return
	}
	set := t.byID[participantID]
	delete(set, connID)
	if len(set) == 0 {
		delete(t.byID, participantID)
	}
}
