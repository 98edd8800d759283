package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"bingohall/internal/bingo"
	"bingohall/internal/broadcast"
	"bingohall/internal/engine"
	"bingohall/internal/events"
	"bingohall/internal/players"
	"bingohall/internal/presence"
)

const (
	CmdRegister = "register"
	CmdEnroll   = "enroll"
	CmdLeave    = "leave"
	CmdClaim    = "claim"
	CmdWatch    = "watch"
)

// ClientMessage is the JSON structure received from clients.
type ClientMessage struct {
	Type   string       `json:"t"`
	Stake  int          `json:"stake,omitempty"`
	Slot   int          `json:"slot,omitempty"`
	Marked []bingo.Cell `json:"marked,omitempty"`
	Layout *bingo.Card  `json:"layout,omitempty"`
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Ref    string       `json:"ref,omitempty"`
}

// Engine is the part of the game engine driven by client commands.
type Engine interface {
	Connect(ctx context.Context, connID, participantID, name string) (*players.Account, error)
	Register(ctx context.Context, connID, participantID, name string) (*players.Account, error)
	Disconnect(ctx context.Context, connID string)
	Enroll(ctx context.Context, participantID string, stake, slot int) error
	Leave(ctx context.Context, participantID string, stake int) error
	Claim(ctx context.Context, stake int, participantID string, marked []bingo.Cell, layout bingo.Card) (*engine.Settlement, error)
	RoomState(ctx context.Context, stake int) (events.Event, error)
}

var (
	errBadRequest     = errors.New("bad_request")
	errUnknownCommand = errors.New("unknown_command")
	errRateLimited    = errors.New("rate_limited")
	errUnregistered   = errors.New("unknown_participant")
)

// Client represents a single WebSocket connection in the hub.
type Client struct {
	ConnID  string
	Conn    *websocket.Conn
	Send    chan []byte
	limiter *rate.Limiter
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

type Options struct {
	// OriginPatterns lists the hosts allowed to open a socket from a browser.
	OriginPatterns []string
	// RatePerSecond and Burst bound inbound commands per connection.
	RatePerSecond float64
	Burst         int
	ReadLimit     int64
}

// Hub accepts WebSocket connections and turns their messages into engine
// calls. Outbound traffic goes through the Broadcaster.
type Hub struct {
	engine   Engine
	out      *broadcast.Broadcaster
	presence *presence.Tracker
	opts     Options
}

// NewHub creates a new Hub.
func NewHub(e Engine, out *broadcast.Broadcaster, tracker *presence.Tracker, opts Options) *Hub {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 10
	}
	return &Hub{engine: e, out: out, presence: tracker, opts: opts}
}

func (h *Hub) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.Burst)
}

// ServeHTTP upgrades the request and runs the connection until it closes. The
// optional id and name query parameters advertise the participant.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := uuid.New().String()
	c := &Client{
		ConnID:  connID,
		Conn:    conn,
		Send:    h.out.Subscribe(connID),
		limiter: h.newLimiter(),
	}
	go c.WritePump(ctx)

	log.Debug().Str("conn", c.ConnID).Str("remote", r.RemoteAddr).Msg("Client connected")
	if id := r.URL.Query().Get("id"); id != "" {
		if _, err := h.engine.Connect(ctx, c.ConnID, id, r.URL.Query().Get("name")); err != nil {
			h.out.Send(c.ConnID, errorEvent(err, ""))
		}
	}

	h.readLoop(ctx, c)

	h.out.Unsubscribe(c.ConnID)
	h.engine.Disconnect(context.WithoutCancel(ctx), c.ConnID)
	conn.Close(websocket.StatusNormalClosure, "")
	log.Debug().Str("conn", c.ConnID).Msg("Client disconnected")
}

func (h *Hub) readLoop(ctx context.Context, c *Client) {
	for {
		typ, data, err := c.Conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug().Err(err).Str("conn", c.ConnID).Msg("Read failed")
			}
			return
		}
		if typ != websocket.MessageText {
			h.out.Send(c.ConnID, errorEvent(errBadRequest, ""))
			continue
		}
		h.Dispatch(ctx, c.ConnID, c.limiter, data)
	}
}

// Dispatch decodes one inbound frame, runs it, and answers the connection
// with an ack or an error.
func (h *Hub) Dispatch(ctx context.Context, connID string, limiter *rate.Limiter, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.out.Send(connID, errorEvent(errBadRequest, ""))
		return
	}
	if limiter != nil && !limiter.Allow() {
		h.out.Send(connID, errorEvent(errRateLimited, msg.Ref))
		return
	}

	ack, err := h.run(ctx, connID, msg)
	if err != nil {
		log.Debug().Err(err).Str("conn", connID).Str("cmd", msg.Type).Msg("Command rejected")
		h.out.Send(connID, errorEvent(err, msg.Ref))
		return
	}
	ack.Type = events.Ack
	ack.Ref = msg.Ref
	h.out.Send(connID, ack)
}

func (h *Hub) run(ctx context.Context, connID string, msg ClientMessage) (events.Event, error) {
	switch msg.Type {
	case CmdRegister:
		acct, err := h.engine.Register(ctx, connID, msg.ID, msg.Name)
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{ParticipantID: acct.ID, Balance: events.Amount(acct.Balance)}, nil

	case CmdWatch:
		if msg.Stake == 0 {
			h.out.Watch(connID, 0)
			return events.Event{}, nil
		}
		state, err := h.engine.RoomState(ctx, msg.Stake)
		if err != nil {
			return events.Event{}, err
		}
		h.out.Watch(connID, msg.Stake)
		h.out.Send(connID, state)
		return events.Event{Stake: msg.Stake}, nil

	case CmdEnroll, CmdLeave, CmdClaim:
	default:
		return events.Event{}, errUnknownCommand
	}

	participantID := h.presence.ParticipantOf(connID)
	if participantID == "" {
		return events.Event{}, errUnregistered
	}

	switch msg.Type {
	case CmdEnroll:
		if err := h.engine.Enroll(ctx, participantID, msg.Stake, msg.Slot); err != nil {
			return events.Event{}, err
		}
		return events.Event{Stake: msg.Stake, NewSlot: msg.Slot}, nil

	case CmdLeave:
		if err := h.engine.Leave(ctx, participantID, msg.Stake); err != nil {
			return events.Event{}, err
		}
		return events.Event{Stake: msg.Stake}, nil
	}

	if msg.Layout == nil {
		return events.Event{}, engine.ErrInvalidPattern
	}
	s, err := h.engine.Claim(ctx, msg.Stake, participantID, msg.Marked, *msg.Layout)
	if err != nil {
		return events.Event{}, err
	}
	return events.Event{
		Stake:    msg.Stake,
		WinnerID: s.WinnerID,
		Pattern:  s.Pattern,
		Prize:    events.Amount(s.Payout.Total),
		Bonus:    events.Amount(s.Payout.Bonus),
	}, nil
}

func errorEvent(err error, ref string) events.Event {
	code := engine.Code(err)
	reason := err.Error()
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, errUnknownCommand),
		errors.Is(err, errRateLimited), errors.Is(err, errUnregistered):
		code = err.Error()
	case engine.Retryable(err):
		reason = ""
	}
	return events.Event{Type: events.Error, Code: code, Reason: reason, Ref: ref}
}
