package history

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "no placeholders",
			query: "SELECT 1",
			want:  "SELECT 1",
		},
		{
			name:  "single placeholder",
			query: "SELECT * FROM positions WHERE pubkey = ?",
			want:  "SELECT * FROM positions WHERE pubkey = $1",
		},
		{
			name:  "numbered in order",
			query: "INSERT INTO ticks (symbol, price, ts) VALUES (?, ?, ?)",
			want:  "INSERT INTO ticks (symbol, price, ts) VALUES ($1, $2, $3)",
		},
		{
			name:  "question mark inside string literal untouched",
			query: "SELECT * FROM events WHERE note = 'why?' AND id = ?",
			want:  "SELECT * FROM events WHERE note = 'why?' AND id = $1",
		},
		{
			name:  "escaped quote keeps literal open",
			query: "SELECT 'it''s a ? mark' , ?",
			want:  "SELECT 'it''s a ? mark' , $1",
		},
		{
			name:  "placeholder after closed literal",
			query: "UPDATE positions SET status = 'open' WHERE pubkey = ? AND side = ?",
			want:  "UPDATE positions SET status = 'open' WHERE pubkey = $1 AND side = $2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, rebindPostgresPlaceholders(tc.query))
		})
	}
}
