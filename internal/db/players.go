package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"bingohall/internal/players"
)

const accountColumns = `id, name, balance, current_stake, current_slot, total_wagered, total_won, last_seen, reachable`

type AccountStore struct {
	db              *DB
	startingBalance decimal.Decimal
	clock           clockwork.Clock
}

func NewAccountStore(d *DB, startingBalance decimal.Decimal, clock clockwork.Clock) *AccountStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AccountStore{db: d, startingBalance: startingBalance, clock: clock}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*players.Account, error) {
	var a players.Account
	err := row.Scan(&a.ID, &a.Name, &a.Balance, &a.CurrentStake, &a.CurrentSlot,
		&a.TotalWagered, &a.TotalWon, &a.LastSeen, &a.Reachable)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOrCreate inserts the account with the starting balance on first contact.
// A non-empty name replaces the stored one.
func (s *AccountStore) GetOrCreate(ctx context.Context, id, name string) (*players.Account, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		INSERT INTO accounts (id, name, balance, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET name = CASE WHEN $2 <> '' THEN $2 ELSE accounts.name END
		RETURNING `+accountColumns,
		id, name, s.startingBalance, s.clock.Now())
	a, err := scanAccount(row)
	if err != nil {
		return nil, unavailable(players.ErrUnavailable, "upserting account", err)
	}
	return a, nil
}

func (s *AccountStore) Get(ctx context.Context, id string) (*players.Account, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, players.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(players.ErrUnavailable, "getting account", err)
	}
	return a, nil
}

func (s *AccountStore) Save(ctx context.Context, a *players.Account) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = $2, balance = $3, current_stake = $4, current_slot = $5,
			total_wagered = $6, total_won = $7, last_seen = $8, reachable = $9
	`, a.ID, a.Name, a.Balance, a.CurrentStake, a.CurrentSlot,
		a.TotalWagered, a.TotalWon, a.LastSeen, a.Reachable)
	return unavailable(players.ErrUnavailable, "saving account", err)
}

func (s *AccountStore) AppendLedger(ctx context.Context, e players.LedgerEntry) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO ledger (id, type, participant_id, amount, stake, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, string(e.Type), e.ParticipantID, e.Amount, e.Stake, e.Reason, e.CreatedAt)
	return unavailable(players.ErrUnavailable, "appending ledger", err)
}

// Ledger returns the most recent entries of a participant, newest first.
func (s *AccountStore) Ledger(ctx context.Context, participantID string, limit int) ([]players.LedgerEntry, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, type, participant_id, amount, stake, reason, created_at
		FROM ledger
		WHERE participant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, participantID, limit)
	if err != nil {
		return nil, unavailable(players.ErrUnavailable, "listing ledger", err)
	}
	defer rows.Close()

	var out []players.LedgerEntry
	for rows.Next() {
		var e players.LedgerEntry
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.ParticipantID, &e.Amount, &e.Stake, &e.Reason, &e.CreatedAt); err != nil {
			return nil, unavailable(players.ErrUnavailable, "scanning ledger", err)
		}
		e.Type = players.EntryType(typ)
		out = append(out, e)
	}
	return out, unavailable(players.ErrUnavailable, "listing ledger", rows.Err())
}
