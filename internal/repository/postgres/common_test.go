package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/promptloop/promptloop/internal/config"
	"github.com/promptloop/promptloop/internal/pkg/database"
)

// getTestDB returns a database connection for integration tests.
// Returns nil if the database is not available (skips tests).
func getTestDB(t *testing.T) *database.PostgresDB {
	if os.Getenv("POSTGRES_TEST_HOST") == "" {
		t.Skip("Skipping integration test: POSTGRES_TEST_HOST not set")
		return nil
	}

	cfg := config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_TEST_HOST"),
		Port:     5432,
		User:     os.Getenv("POSTGRES_TEST_USER"),
		Password: os.Getenv("POSTGRES_TEST_PASS"),
		Database: os.Getenv("POSTGRES_TEST_DB"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}

	if cfg.Database == "" {
		cfg.Database = "test_promptloop"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}

	db, err := database.NewPostgres(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to PostgreSQL: %v", err)
		return nil
	}

	return db
}

// cleanupIterations removes test iterations and their run graphs
func cleanupIterations(t *testing.T, db *database.PostgresDB, ids ...any) {
	ctx := context.Background()
	for _, id := range ids {
		_, _ = db.Pool.Exec(ctx, "DELETE FROM judgments WHERE output_id IN (SELECT o.id FROM outputs o JOIN model_runs m ON m.id = o.run_id WHERE m.iteration_id = $1)", id)
		_, _ = db.Pool.Exec(ctx, "DELETE FROM outputs WHERE run_id IN (SELECT id FROM model_runs WHERE iteration_id = $1)", id)
		_, _ = db.Pool.Exec(ctx, "DELETE FROM model_runs WHERE iteration_id = $1", id)
		_, _ = db.Pool.Exec(ctx, "DELETE FROM iterations WHERE id = $1", id)
	}
}
