package analytics

import (
	"context"
	"fmt"

	"bingohall/internal/db"
)

// Queries answers reports with SQL against the ledger table.
type Queries struct {
	DB *db.DB
}

func NewQueries(database *db.DB) *Queries {
	return &Queries{DB: database}
}

func (q *Queries) HouseEarnings(ctx context.Context) ([]StakeEarnings, error) {
	rows, err := q.DB.QueryContext(ctx, `
		SELECT stake, COUNT(*), COALESCE(SUM(amount), 0)
		FROM ledger
		WHERE type = 'house'
		GROUP BY stake
		ORDER BY stake
	`)
	if err != nil {
		return nil, fmt.Errorf("getting house earnings: %w", err)
	}
	defer rows.Close()

	var out []StakeEarnings
	for rows.Next() {
		var e StakeEarnings
		if err := rows.Scan(&e.Stake, &e.Rounds, &e.Earnings); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *Queries) TopWinners(ctx context.Context, limit int) ([]WinnerEntry, error) {
	rows, err := q.DB.QueryContext(ctx, `
		SELECT l.participant_id, COALESCE(a.name, ''), COUNT(*) AS wins, SUM(l.amount) AS won
		FROM ledger l
		LEFT JOIN accounts a ON a.id = l.participant_id
		WHERE l.type = 'win'
		GROUP BY l.participant_id, a.name
		ORDER BY won DESC, l.participant_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("getting top winners: %w", err)
	}
	defer rows.Close()

	var out []WinnerEntry
	for rows.Next() {
		e := WinnerEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.ParticipantID, &e.Name, &e.Wins, &e.TotalWon); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
