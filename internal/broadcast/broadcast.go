package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"bingohall/internal/events"
	"bingohall/internal/presence"
)

// SendBuffer is the per-connection outbound queue length.
const SendBuffer = 32

// Broadcaster fans events out to live connections. Participants are resolved
// to connections through the presence tracker; lobby watchers are tracked
// here. Sends never block: a full queue drops the frame.
type Broadcaster struct {
	Mu       sync.Mutex
	Clients  map[string]chan []byte
	watching map[string]int
	presence *presence.Tracker

	// OnDrop, when set, is called for every frame dropped on a full queue.
	OnDrop func(connID string)
}

func NewBroadcaster(tracker *presence.Tracker) *Broadcaster {
	return &Broadcaster{
		Clients:  make(map[string]chan []byte),
		watching: make(map[string]int),
		presence: tracker,
	}
}

// Subscribe opens the outbound queue of a connection.
func (b *Broadcaster) Subscribe(connID string) chan []byte {
	ch := make(chan []byte, SendBuffer)
	b.Mu.Lock()
	if old, ok := b.Clients[connID]; ok {
		close(old)
	}
	b.Clients[connID] = ch
	b.Mu.Unlock()
	return ch
}

// Unsubscribe closes the queue of a connection and stops its lobby watch.
func (b *Broadcaster) Unsubscribe(connID string) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	if ch, ok := b.Clients[connID]; ok {
		close(ch)
		delete(b.Clients, connID)
	}
	delete(b.watching, connID)
}

// Watch subscribes a connection to the lobby of stake, replacing any earlier
// watch. A stake of 0 stops watching.
func (b *Broadcaster) Watch(connID string, stake int) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	if stake == 0 {
		delete(b.watching, connID)
		return
	}
	b.watching[connID] = stake
}

// Send delivers ev to a single connection.
func (b *Broadcaster) Send(connID string, ev events.Event) {
	data, ok := encode(ev)
	if !ok {
		return
	}
	b.Mu.Lock()
	defer b.Mu.Unlock()
	b.deliver(connID, data)
}

func (b *Broadcaster) Notify(participantIDs []string, ev events.Event) {
	b.fanOut(0, participantIDs, ev)
}

func (b *Broadcaster) NotifyRoom(stake int, participantIDs []string, ev events.Event) {
	b.fanOut(stake, participantIDs, ev)
}

// BroadcastAll sends ev to every open connection.
func (b *Broadcaster) BroadcastAll(ev events.Event) {
	data, ok := encode(ev)
	if !ok {
		return
	}
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for connID := range b.Clients {
		b.deliver(connID, data)
	}
}

// fanOut sends ev once to each connection of the participants and, when
// stake is set, to each connection watching that stake.
func (b *Broadcaster) fanOut(stake int, participantIDs []string, ev events.Event) {
	data, ok := encode(ev)
	if !ok {
		return
	}

	targets := make(map[string]struct{})
	for _, id := range participantIDs {
		for _, connID := range b.presence.Connections(id) {
			targets[connID] = struct{}{}
		}
	}

	b.Mu.Lock()
	defer b.Mu.Unlock()
	if stake != 0 {
		for connID, watched := range b.watching {
			if watched == stake {
				targets[connID] = struct{}{}
			}
		}
	}
	for connID := range targets {
		b.deliver(connID, data)
	}
}

// deliver must be called with Mu held.
func (b *Broadcaster) deliver(connID string, data []byte) {
	ch, ok := b.Clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- data:
	default:
		log.Debug().Str("conn", connID).Msg("Dropping frame for slow client")
		if b.OnDrop != nil {
			b.OnDrop(connID)
		}
	}
}

func encode(ev events.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode event")
		return nil, false
	}
	return data, true
}
