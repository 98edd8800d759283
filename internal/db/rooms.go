package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"bingohall/internal/rooms"
)

// RoomStore keeps one row per stake. The room snapshot lives in a JSONB
// column so a save replaces it whole.
type RoomStore struct {
	db    *DB
	clock clockwork.Clock
}

func NewRoomStore(d *DB, clock clockwork.Clock) *RoomStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomStore{db: d, clock: clock}
}

func (s *RoomStore) FetchActive(ctx context.Context, stake int) (*rooms.Room, error) {
	r, err := s.get(ctx, stake)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	fresh := rooms.New(uuid.New().String(), stake, s.clock.Now())
	state, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("encoding room: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO rooms (stake, id, phase, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stake) DO NOTHING
	`, stake, fresh.ID, string(fresh.Phase), state, fresh.UpdatedAt)
	if err != nil {
		return nil, unavailable(rooms.ErrUnavailable, "creating room", err)
	}
	return s.get(ctx, stake)
}

func (s *RoomStore) get(ctx context.Context, stake int) (*rooms.Room, error) {
	var state []byte
	err := s.db.conn.QueryRowContext(ctx, `SELECT state FROM rooms WHERE stake = $1`, stake).Scan(&state)
	if err != nil {
		return nil, unavailable(rooms.ErrUnavailable, "getting room", err)
	}
	return decodeRoom(state)
}

func (s *RoomStore) Save(ctx context.Context, room *rooms.Room) error {
	room.UpdatedAt = s.clock.Now()
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room: %w", err)
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO rooms (stake, id, phase, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stake) DO UPDATE SET id = $2, phase = $3, state = $4, updated_at = $5
	`, room.Stake, room.ID, string(room.Phase), state, room.UpdatedAt)
	return unavailable(rooms.ErrUnavailable, "saving room", err)
}

func (s *RoomStore) List(ctx context.Context) ([]*rooms.Room, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT state FROM rooms ORDER BY stake`)
	if err != nil {
		return nil, unavailable(rooms.ErrUnavailable, "listing rooms", err)
	}
	defer rows.Close()

	var list []*rooms.Room
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, unavailable(rooms.ErrUnavailable, "scanning room", err)
		}
		r, err := decodeRoom(state)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, unavailable(rooms.ErrUnavailable, "listing rooms", rows.Err())
}

func (s *RoomStore) Delete(ctx context.Context, stake int) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM rooms WHERE stake = $1`, stake)
	return unavailable(rooms.ErrUnavailable, "deleting room", err)
}

func decodeRoom(state []byte) (*rooms.Room, error) {
	var r rooms.Room
	if err := json.Unmarshal(state, &r); err != nil {
		return nil, fmt.Errorf("decoding room: %w", err)
	}
	if r.Enrolled == nil {
		r.Enrolled = []string{}
	}
	if r.Slots == nil {
		r.Slots = []int{}
	}
	if r.Drawn == nil {
		r.Drawn = []int{}
	}
	return &r, nil
}
