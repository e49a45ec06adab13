package pricing

import (
	"fmt"
	"math"
	"sort"
)

// FoamType selects the expanding foam product.
type FoamType string

const (
	FoamStandard    FoamType = "standard"
	FoamHighDensity FoamType = "high-density"
)

// ApplicationType distinguishes lifting a slab from filling a void under it.
type ApplicationType string

const (
	ApplicationLift     ApplicationType = "lift"
	ApplicationVoidFill ApplicationType = "void-fill"
)

// SoilType is the soil beneath the slab.
type SoilType string

const (
	SoilClay    SoilType = "clay"
	SoilSand    SoilType = "sand"
	SoilMixed   SoilType = "mixed"
	SoilRock    SoilType = "rock"
	SoilOrganic SoilType = "organic"
)

// SidesSettled counts the settled edges of a slab.
type SidesSettled int

const (
	OneSide    SidesSettled = 1
	TwoSides   SidesSettled = 2
	EntireSlab SidesSettled = 3
)

var (
	foamTypes        = []FoamType{FoamStandard, FoamHighDensity}
	applicationTypes = []ApplicationType{ApplicationLift, ApplicationVoidFill}
)

// FoamKey is the lookup key of a foam factor, e.g. "standard/lift".
func FoamKey(foam FoamType, application ApplicationType) string {
	return string(foam) + "/" + string(application)
}

// Rates holds every business constant the calculator applies.
// Values are owned by the business and stored alongside the documents.
type Rates struct {
	// FoamFactors is pounds of foam per cubic yard of void, keyed by FoamKey.
	FoamFactors             map[string]float64       `json:"foam_factors"`
	ComplexityFactors       map[SidesSettled]float64 `json:"complexity_factors"`
	SoilMultipliers         map[SoilType]float64     `json:"soil_multipliers"`
	EnvironmentalMultiplier float64                  `json:"environmental_multiplier"`
	// PerMileRate is charged for both legs of the trip.
	PerMileRate         float64 `json:"per_mile_rate"`
	BaseFee             float64 `json:"base_fee"`
	LaborMultiplierLow  float64 `json:"labor_multiplier_low"`
	LaborMultiplierHigh float64 `json:"labor_multiplier_high"`
	// PricePerPoundLow and PricePerPoundHigh are offered when a job omits its own bounds.
	PricePerPoundLow  float64 `json:"price_per_pound_low"`
	PricePerPoundHigh float64 `json:"price_per_pound_high"`
}

// DefaultRates returns the built-in rate table with the three-tier complexity table.
func DefaultRates() Rates {
	return Rates{
		FoamFactors: map[string]float64{
			FoamKey(FoamStandard, ApplicationLift):        100,
			FoamKey(FoamStandard, ApplicationVoidFill):    70,
			FoamKey(FoamHighDensity, ApplicationLift):     120,
			FoamKey(FoamHighDensity, ApplicationVoidFill): 110,
		},
		ComplexityFactors: map[SidesSettled]float64{
			OneSide:    1.0,
			TwoSides:   1.1,
			EntireSlab: 1.2,
		},
		SoilMultipliers: map[SoilType]float64{
			SoilClay:    1.15,
			SoilSand:    1.10,
			SoilMixed:   1.00,
			SoilRock:    1.05,
			SoilOrganic: 1.25,
		},
		EnvironmentalMultiplier: 1.05,
		PerMileRate:             0.75,
		BaseFee:                 150,
		LaborMultiplierLow:      3.33,
		LaborMultiplierHigh:     5.0,
		PricePerPoundLow:        7,
		PricePerPoundHigh:       10,
	}
}

// ExtendedComplexity returns the four-tier complexity table used by some
// call sites of the field app. It is not the default.
func ExtendedComplexity() map[SidesSettled]float64 {
	return map[SidesSettled]float64{
		OneSide:    1.0,
		TwoSides:   1.1,
		EntireSlab: 1.2,
		4:          1.3,
	}
}

// Clone returns a deep copy so callers can edit tables without aliasing.
func (r Rates) Clone() Rates {
	out := r
	out.FoamFactors = make(map[string]float64, len(r.FoamFactors))
	for k, v := range r.FoamFactors {
		out.FoamFactors[k] = v
	}
	out.ComplexityFactors = make(map[SidesSettled]float64, len(r.ComplexityFactors))
	for k, v := range r.ComplexityFactors {
		out.ComplexityFactors[k] = v
	}
	out.SoilMultipliers = make(map[SoilType]float64, len(r.SoilMultipliers))
	for k, v := range r.SoilMultipliers {
		out.SoilMultipliers[k] = v
	}
	return out
}

// Validate checks that the table can price every supported selection.
func (r Rates) Validate() error {
	for _, foam := range foamTypes {
		for _, app := range applicationTypes {
			key := FoamKey(foam, app)
			v, ok := r.FoamFactors[key]
			if !ok {
				return fieldError(ErrInvalidRates, "foam_factors", fmt.Sprintf("missing %s", key))
			}
			if !positive(v) {
				return fieldError(ErrInvalidRates, "foam_factors", fmt.Sprintf("%s must be greater than 0", key))
			}
		}
	}

	for _, sides := range []SidesSettled{OneSide, TwoSides, EntireSlab} {
		if _, ok := r.ComplexityFactors[sides]; !ok {
			return fieldError(ErrInvalidRates, "complexity_factors", fmt.Sprintf("missing entry for %d sides", sides))
		}
	}
	for sides, v := range r.ComplexityFactors {
		if sides < 1 {
			return fieldError(ErrInvalidRates, "complexity_factors", fmt.Sprintf("sides %d must be at least 1", sides))
		}
		if !positive(v) {
			return fieldError(ErrInvalidRates, "complexity_factors", fmt.Sprintf("factor for %d sides must be greater than 0", sides))
		}
	}

	if len(r.SoilMultipliers) == 0 {
		return fieldError(ErrInvalidRates, "soil_multipliers", "at least one soil type is required")
	}
	if _, ok := r.SoilMultipliers[SoilMixed]; !ok {
		return fieldError(ErrInvalidRates, "soil_multipliers", "mixed soil is required as the default")
	}
	for soil, v := range r.SoilMultipliers {
		if !positive(v) {
			return fieldError(ErrInvalidRates, "soil_multipliers", fmt.Sprintf("%s must be greater than 0", soil))
		}
	}

	if !positive(r.EnvironmentalMultiplier) {
		return fieldError(ErrInvalidRates, "environmental_multiplier", "must be greater than 0")
	}
	if !nonNegative(r.PerMileRate) {
		return fieldError(ErrInvalidRates, "per_mile_rate", "must be 0 or greater")
	}
	if !nonNegative(r.BaseFee) {
		return fieldError(ErrInvalidRates, "base_fee", "must be 0 or greater")
	}
	if !finite(r.LaborMultiplierLow) || r.LaborMultiplierLow < 1 {
		return fieldError(ErrInvalidRates, "labor_multiplier_low", "must be at least 1")
	}
	if !finite(r.LaborMultiplierHigh) || r.LaborMultiplierHigh < r.LaborMultiplierLow {
		return fieldError(ErrInvalidRates, "labor_multiplier_high", "must be at least labor_multiplier_low")
	}
	if err := validatePriceBounds(r.PricePerPoundLow, r.PricePerPoundHigh); err != nil {
		return fieldError(ErrInvalidRates, "price_per_pound", err.(*FieldError).Reason)
	}

	return nil
}

// ComplexityTiers lists the configured side counts in ascending order.
func (r Rates) ComplexityTiers() []SidesSettled {
	tiers := make([]SidesSettled, 0, len(r.ComplexityFactors))
	for sides := range r.ComplexityFactors {
		tiers = append(tiers, sides)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

func nonNegative(v float64) bool {
	return finite(v) && v >= 0
}
