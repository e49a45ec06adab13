package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Simplici0/levelworks/internal/pricing"
)

// ErrRatesNotSeeded is returned when the rate_config singleton is missing.
var ErrRatesNotSeeded = errors.New("rate tables are not seeded")

// LoadRates reads the rate singleton and its lookup tables.
func (s *Store) LoadRates(ctx context.Context) (pricing.Rates, error) {
	var r pricing.Rates
	err := s.db.QueryRowContext(ctx, `
		SELECT environmental_multiplier, per_mile_rate, base_fee,
			labor_multiplier_low, labor_multiplier_high,
			price_per_pound_low, price_per_pound_high
		FROM rate_config
		WHERE id = 1
	`).Scan(
		&r.EnvironmentalMultiplier,
		&r.PerMileRate,
		&r.BaseFee,
		&r.LaborMultiplierLow,
		&r.LaborMultiplierHigh,
		&r.PricePerPoundLow,
		&r.PricePerPoundHigh,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Rates{}, ErrRatesNotSeeded
	}
	if err != nil {
		return pricing.Rates{}, fmt.Errorf("query rate_config: %w", err)
	}

	if r.FoamFactors, err = s.loadFoamFactors(ctx); err != nil {
		return pricing.Rates{}, err
	}
	if r.ComplexityFactors, err = s.loadComplexity(ctx); err != nil {
		return pricing.Rates{}, err
	}
	if r.SoilMultipliers, err = s.loadSoil(ctx); err != nil {
		return pricing.Rates{}, err
	}
	return r, nil
}

// SaveRates validates and replaces the whole rate table.
func (s *Store) SaveRates(ctx context.Context, r pricing.Rates) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return WriteRates(ctx, tx, r)
	})
}

// WriteRates replaces the rate tables inside an open transaction.
func WriteRates(ctx context.Context, tx *sql.Tx, r pricing.Rates) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rate_config (
			id,
			environmental_multiplier,
			per_mile_rate,
			base_fee,
			labor_multiplier_low,
			labor_multiplier_high,
			price_per_pound_low,
			price_per_pound_high,
			updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			environmental_multiplier = excluded.environmental_multiplier,
			per_mile_rate = excluded.per_mile_rate,
			base_fee = excluded.base_fee,
			labor_multiplier_low = excluded.labor_multiplier_low,
			labor_multiplier_high = excluded.labor_multiplier_high,
			price_per_pound_low = excluded.price_per_pound_low,
			price_per_pound_high = excluded.price_per_pound_high,
			updated_at = CURRENT_TIMESTAMP
	`,
		r.EnvironmentalMultiplier,
		r.PerMileRate,
		r.BaseFee,
		r.LaborMultiplierLow,
		r.LaborMultiplierHigh,
		r.PricePerPoundLow,
		r.PricePerPoundHigh,
	)
	if err != nil {
		return fmt.Errorf("upsert rate_config: %w", err)
	}

	for _, table := range []string{"foam_factors", "complexity_factors", "soil_multipliers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for key, factor := range r.FoamFactors {
		foam, app, ok := strings.Cut(key, "/")
		if !ok {
			return fmt.Errorf("foam factor key %q must be foam/application", key)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO foam_factors (foam_type, application_type, pounds_per_cubic_yard) VALUES (?, ?, ?)
		`, foam, app, factor); err != nil {
			return fmt.Errorf("insert foam factor %s: %w", key, err)
		}
	}
	for sides, factor := range r.ComplexityFactors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO complexity_factors (sides_settled, factor) VALUES (?, ?)
		`, int(sides), factor); err != nil {
			return fmt.Errorf("insert complexity factor %d: %w", sides, err)
		}
	}
	for soil, mult := range r.SoilMultipliers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO soil_multipliers (soil_type, multiplier) VALUES (?, ?)
		`, string(soil), mult); err != nil {
			return fmt.Errorf("insert soil multiplier %s: %w", soil, err)
		}
	}
	return nil
}

// RatesSeeded reports whether the rate singleton exists.
func RatesSeeded(ctx context.Context, tx *sql.Tx) (bool, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rate_config WHERE id = 1)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check rate_config existence: %w", err)
	}
	return exists, nil
}

func (s *Store) loadFoamFactors(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT foam_type, application_type, pounds_per_cubic_yard FROM foam_factors`)
	if err != nil {
		return nil, fmt.Errorf("query foam factors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			foam, app string
			factor    float64
		)
		if err := rows.Scan(&foam, &app, &factor); err != nil {
			return nil, fmt.Errorf("scan foam factor: %w", err)
		}
		out[pricing.FoamKey(pricing.FoamType(foam), pricing.ApplicationType(app))] = factor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foam factors: %w", err)
	}
	return out, nil
}

func (s *Store) loadComplexity(ctx context.Context) (map[pricing.SidesSettled]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sides_settled, factor FROM complexity_factors`)
	if err != nil {
		return nil, fmt.Errorf("query complexity factors: %w", err)
	}
	defer rows.Close()

	out := make(map[pricing.SidesSettled]float64)
	for rows.Next() {
		var (
			sides  int
			factor float64
		)
		if err := rows.Scan(&sides, &factor); err != nil {
			return nil, fmt.Errorf("scan complexity factor: %w", err)
		}
		out[pricing.SidesSettled(sides)] = factor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complexity factors: %w", err)
	}
	return out, nil
}

func (s *Store) loadSoil(ctx context.Context) (map[pricing.SoilType]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT soil_type, multiplier FROM soil_multipliers`)
	if err != nil {
		return nil, fmt.Errorf("query soil multipliers: %w", err)
	}
	defer rows.Close()

	out := make(map[pricing.SoilType]float64)
	for rows.Next() {
		var (
			soil string
			mult float64
		)
		if err := rows.Scan(&soil, &mult); err != nil {
			return nil, fmt.Errorf("scan soil multiplier: %w", err)
		}
		out[pricing.SoilType(soil)] = mult
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate soil multipliers: %w", err)
	}
	return out, nil
}
