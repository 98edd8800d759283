package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"bingohall/internal/events"
)

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "bingo",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher is the part of *nats.Conn the relay uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the payload published for every event.
type Envelope struct {
	Stake        int          `json:"stake,omitempty"`
	Participants []string     `json:"participants"`
	Event        events.Event `json:"event"`
}

// Relay mirrors outbound events onto NATS so front-ends other than the
// WebSocket clients can follow the game. Room events go to
// <prefix>.rooms.<stake>.<type>; direct events go to
// <prefix>.participants.<type>.
type Relay struct {
	pub    Publisher
	prefix string
	close  func()
}

// Connect dials NATS and returns a relay publishing on it.
func Connect(cfg Config) (*Relay, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("bingohall"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	r := New(nc, cfg.SubjectPrefix)
	r.close = func() {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("NATS drain failed")
		}
	}
	return r, nil
}

func New(pub Publisher, prefix string) *Relay {
	if prefix == "" {
		prefix = "bingo"
	}
	return &Relay{pub: pub, prefix: prefix}
}

func (r *Relay) Notify(participantIDs []string, ev events.Event) {
	r.publish(r.prefix+".participants."+string(ev.Type), Envelope{Participants: participantIDs, Event: ev})
}

func (r *Relay) NotifyRoom(stake int, participantIDs []string, ev events.Event) {
	subject := r.prefix + ".rooms." + strconv.Itoa(stake) + "." + string(ev.Type)
	r.publish(subject, Envelope{Stake: stake, Participants: participantIDs, Event: ev})
}

func (r *Relay) publish(subject string, env Envelope) {
	if env.Participants == nil {
		env.Participants = []string{}
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to encode relay envelope")
		return
	}
	if err := r.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Relay publish failed")
	}
}

// Close drains the NATS connection when the relay owns one.
func (r *Relay) Close() {
	if r.close != nil {
		r.close()
	}
}
