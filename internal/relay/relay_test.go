package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bingohall/internal/events"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.msgs = append(f.msgs, published{subject, data})
	return f.err
}

var _ events.Notifier = (*Relay)(nil)

func TestRelay_RoomSubjectAndEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	r := New(pub, "")

	r.NotifyRoom(10, []string{"p1", "p2"}, events.Event{
		Type:     events.RoundSettled,
		Stake:    10,
		WinnerID: "p1",
		Prize:    events.Amount(decimal.NewFromInt(40)),
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "bingo.rooms.10.round-settled", pub.msgs[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &env))
	assert.Equal(t, 10, env.Stake)
	assert.Equal(t, []string{"p1", "p2"}, env.Participants)
	assert.Equal(t, "p1", env.Event.WinnerID)
	assert.Equal(t, "40", env.Event.Prize.String())
}

func TestRelay_DirectSubject(t *testing.T) {
	pub := &fakePublisher{}
	r := New(pub, "hall")

	r.Notify(nil, events.Event{Type: events.BalanceChanged, ParticipantID: "p1"})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "hall.participants.balance-changed", pub.msgs[0].subject)
	assert.Contains(t, string(pub.msgs[0].data), `"participants":[]`)
}

func TestRelay_PublishErrorDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	r := New(pub, "bingo")

	assert.NotPanics(t, func() {
		r.NotifyRoom(20, nil, events.Event{Type: events.Draw, Value: 5})
	})
	r.Close()
}
