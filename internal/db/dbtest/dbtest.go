// Package dbtest opens a migrated, empty Postgres database for integration
// tests. Tests are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/db/migrate"
)

const truncateAll = `TRUNCATE recent_measurements, gcm_measurements, cdn_ping_measurements, cdn_ip_data,
	rrc_inference_sizes_raw_data, rrc_inference_raw_data, validation_entries, validation_summaries,
	device_tasks, measurements, tasks, device_properties, devices RESTART IDENTITY CASCADE`

// Open returns a connection to TEST_DATABASE_URL with every table emptied. The
// connection is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	if _, err := conn.ExecContext(ctx, truncateAll); err != nil {
		conn.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
