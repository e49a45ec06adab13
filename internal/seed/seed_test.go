package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/levelworks/internal/db"
	"github.com/Simplici0/levelworks/internal/migrations"
	"github.com/Simplici0/levelworks/internal/pricing"
	"github.com/Simplici0/levelworks/internal/store"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	ctx := context.Background()

	rates := pricing.DefaultRates()
	rates.BaseFee = 225
	cfg := Config{
		AdminEmail:    "owner@levelworks.test",
		AdminPassword: "12345",
		Rates:         rates,
	}

	for i := 0; i < 5; i++ {
		stats, err := Run(ctx, database, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 2 {
				t.Fatalf("expected 2 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM users WHERE email = ?`, "owner@levelworks.test", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_config WHERE id = 1`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM foam_factors`, nil, 4)
	assertCount(t, database, `SELECT COUNT(*) FROM complexity_factors`, nil, 3)

	var hash string
	if err := database.QueryRow(`SELECT password_hash FROM users WHERE email = ?`, "owner@levelworks.test").Scan(&hash); err != nil {
		t.Fatalf("query admin hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("12345")); err != nil {
		t.Fatalf("expected admin hash to match password: %v", err)
	}

	loaded, err := store.New(database).LoadRates(ctx)
	if err != nil {
		t.Fatalf("load seeded rates: %v", err)
	}
	if loaded.BaseFee != 225 {
		t.Fatalf("expected configured base fee 225, got %v", loaded.BaseFee)
	}
}

func TestRunKeepsEditedRates(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	ctx := context.Background()

	if _, err := Run(ctx, database, Config{}); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	edited := pricing.DefaultRates()
	edited.PerMileRate = 1.25
	if err := store.New(database).SaveRates(ctx, edited); err != nil {
		t.Fatalf("save rates: %v", err)
	}

	if _, err := Run(ctx, database, Config{Rates: pricing.DefaultRates()}); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	loaded, err := store.New(database).LoadRates(ctx)
	if err != nil {
		t.Fatalf("load rates: %v", err)
	}
	if loaded.PerMileRate != 1.25 {
		t.Fatalf("seed overwrote edited rates: per mile rate %v", loaded.PerMileRate)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM users`, nil, 0)
}

func TestRunRejectsInvalidRates(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)

	bad := pricing.DefaultRates()
	bad.EnvironmentalMultiplier = 0
	if _, err := Run(context.Background(), database, Config{Rates: bad}); err == nil {
		t.Fatalf("expected invalid rates to fail the seed")
	}
	assertCount(t, database, `SELECT COUNT(*) FROM rate_config`, nil, 0)
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
