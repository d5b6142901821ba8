package migrations

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tables = []string{"users", "tools", "bookings", "payment_events", "notifications"}

// TestMigrations applies and rolls back every migration against the database
// in TEST_DATABASE_URL.
func TestMigrations(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	require.NoError(t, err)

	_, err = provider.DownTo(ctx, 0)
	require.NoError(t, err, "initial reset")

	require.NoError(t, Up(ctx, db))
	for _, table := range tables {
		assert.True(t, tableExists(t, db, table), "expected table %q", table)
	}

	t.Run("Overlapping approved bookings are rejected", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `INSERT INTO users (id, email, name) VALUES (1, 'o@example.com', 'Owner')`)
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, `INSERT INTO tools (id, owner_id, name, price_per_day_cents) VALUES (1, 1, 'Saw', 1000)`)
		require.NoError(t, err)

		insert := `INSERT INTO bookings (id, tool_id, renter_id, owner_id, start_date, end_date, duration_days,
		           daily_price_cents, total_price_cents, status, payment_status, created_at, updated_at)
		           VALUES ($1, 1, 2, 1, $2, $3, 2, 1000, 2000, $4, 'pending', now(), now())`
		_, err = db.ExecContext(ctx, insert, "b1", "2024-07-01", "2024-07-03", "approved")
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, insert, "b2", "2024-07-02", "2024-07-04", "pending")
		require.NoError(t, err, "pending bookings do not hold the calendar")
		_, err = db.ExecContext(ctx, insert, "b3", "2024-07-03", "2024-07-05", "approved")
		require.NoError(t, err, "end date is exclusive")
		_, err = db.ExecContext(ctx, insert, "b4", "2024-07-02", "2024-07-03", "active")
		assert.Error(t, err)
	})

	_, err = provider.DownTo(ctx, 0)
	require.NoError(t, err)
	for _, table := range tables {
		assert.False(t, tableExists(t, db, table), "expected table %q to be dropped", table)
	}
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1)`
	var exists bool
	require.NoError(t, db.QueryRowContext(context.Background(), q, table).Scan(&exists))
	return exists
}
