package pricing

import (
	"fmt"
	"strconv"
)

// JobInput describes a slab leveling job as collected from the job form.
type JobInput struct {
	Length              float64         `json:"length"`
	Width               float64         `json:"width"`
	LiftInches          float64         `json:"lift_inches"`
	SidesSettled        SidesSettled    `json:"sides_settled"`
	FoamType            FoamType        `json:"foam_type"`
	ApplicationType     ApplicationType `json:"application_type"`
	SoilType            SoilType        `json:"soil_type,omitempty"`
	TravelDistanceMiles float64         `json:"travel_distance_miles"`
	PricePerPoundLow    float64         `json:"price_per_pound_low"`
	PricePerPoundHigh   float64         `json:"price_per_pound_high"`
}

// Result contains every intermediate quantity of the calculation and the final range.
type Result struct {
	SquareFootage           float64 `json:"square_footage"`
	VoidVolumeCubicYards    float64 `json:"void_volume_cubic_yards"`
	FoamFactor              float64 `json:"foam_factor"`
	MaterialWeightPounds    float64 `json:"material_weight_pounds"`
	MaterialCostLow         float64 `json:"material_cost_low"`
	MaterialCostHigh        float64 `json:"material_cost_high"`
	ComplexityFactor        float64 `json:"complexity_factor"`
	SoilMultiplier          float64 `json:"soil_multiplier"`
	EnvironmentalMultiplier float64 `json:"environmental_multiplier"`
	SubtotalLow             float64 `json:"subtotal_low"`
	SubtotalHigh            float64 `json:"subtotal_high"`
	EquipmentCost           float64 `json:"equipment_cost"`
	LaborMultiplierLow      float64 `json:"labor_multiplier_low"`
	LaborMultiplierHigh     float64 `json:"labor_multiplier_high"`
	LaborOverheadLow        float64 `json:"labor_overhead_low"`
	LaborOverheadHigh       float64 `json:"labor_overhead_high"`
	EstimatedPriceLow       float64 `json:"estimated_price_low"`
	EstimatedPriceHigh      float64 `json:"estimated_price_high"`
}

// Bound picks which end of the estimated range becomes a line item amount.
type Bound string

const (
	BoundLow  Bound = "low"
	BoundHigh Bound = "high"
	BoundMid  Bound = "mid"
)

// ParseBound accepts "low", "high" or "mid"; empty means mid.
func ParseBound(raw string) (Bound, error) {
	switch Bound(raw) {
	case "":
		return BoundMid, nil
	case BoundLow, BoundHigh, BoundMid:
		return Bound(raw), nil
	}
	return "", fieldError(ErrMissingSelection, "bound", "must be low, high or mid")
}

// Calculate prices a job against a rate table.
func Calculate(in JobInput, rates Rates) (Result, error) {
	if err := validateDimensions(in); err != nil {
		return Result{}, err
	}

	if in.FoamType == "" {
		return Result{}, fieldError(ErrMissingSelection, "foam_type", "is required")
	}
	if in.ApplicationType == "" {
		return Result{}, fieldError(ErrMissingSelection, "application_type", "is required")
	}
	foamFactor, ok := rates.FoamFactors[FoamKey(in.FoamType, in.ApplicationType)]
	if !ok {
		if !knownFoam(rates, in.FoamType) {
			return Result{}, fieldError(ErrMissingSelection, "foam_type", fmt.Sprintf("unknown foam type %q", in.FoamType))
		}
		return Result{}, fieldError(ErrMissingSelection, "application_type", fmt.Sprintf("unknown application type %q", in.ApplicationType))
	}

	if in.SidesSettled == 0 {
		return Result{}, fieldError(ErrMissingSelection, "sides_settled", "is required")
	}
	complexity, ok := rates.ComplexityFactors[in.SidesSettled]
	if !ok {
		return Result{}, fieldError(ErrMissingSelection, "sides_settled", fmt.Sprintf("unsupported value %d", in.SidesSettled))
	}

	soil := in.SoilType
	if soil == "" {
		soil = SoilMixed
	}
	soilMultiplier, ok := rates.SoilMultipliers[soil]
	if !ok {
		return Result{}, fieldError(ErrMissingSelection, "soil_type", fmt.Sprintf("unknown soil type %q", soil))
	}

	if err := validatePriceBounds(in.PricePerPoundLow, in.PricePerPoundHigh); err != nil {
		return Result{}, err
	}

	squareFootage := in.Length * in.Width
	voidVolume := (squareFootage * (in.LiftInches / 12.0)) / 27.0
	weight := voidVolume * foamFactor

	materialLow := weight * in.PricePerPoundLow
	materialHigh := weight * in.PricePerPoundHigh

	multiplier := complexity * soilMultiplier * rates.EnvironmentalMultiplier
	subtotalLow := materialLow * multiplier
	subtotalHigh := materialHigh * multiplier

	equipment := in.TravelDistanceMiles*2*rates.PerMileRate + rates.BaseFee

	laborLow := (subtotalLow + equipment) * (rates.LaborMultiplierLow - 1)
	laborHigh := (subtotalHigh + equipment) * (rates.LaborMultiplierHigh - 1)

	priceLow := subtotalLow + equipment + laborLow
	priceHigh := subtotalHigh + equipment + laborHigh
	for _, v := range []float64{squareFootage, voidVolume, weight, priceLow, priceHigh} {
		if !finite(v) {
			return Result{}, fieldError(ErrInvalidDimensions, "length", "dimensions are too large")
		}
	}

	return Result{
		SquareFootage:           squareFootage,
		VoidVolumeCubicYards:    voidVolume,
		FoamFactor:              foamFactor,
		MaterialWeightPounds:    weight,
		MaterialCostLow:         materialLow,
		MaterialCostHigh:        materialHigh,
		ComplexityFactor:        complexity,
		SoilMultiplier:          soilMultiplier,
		EnvironmentalMultiplier: rates.EnvironmentalMultiplier,
		SubtotalLow:             subtotalLow,
		SubtotalHigh:            subtotalHigh,
		EquipmentCost:           equipment,
		LaborMultiplierLow:      rates.LaborMultiplierLow,
		LaborMultiplierHigh:     rates.LaborMultiplierHigh,
		LaborOverheadLow:        laborLow,
		LaborOverheadHigh:       laborHigh,
		EstimatedPriceLow:       priceLow,
		EstimatedPriceHigh:      priceHigh,
	}, nil
}

// Amount returns the price at the requested bound.
func (r Result) Amount(b Bound) float64 {
	switch b {
	case BoundLow:
		return r.EstimatedPriceLow
	case BoundHigh:
		return r.EstimatedPriceHigh
	default:
		return (r.EstimatedPriceLow + r.EstimatedPriceHigh) / 2
	}
}

// Describe renders the line item description for a job.
func Describe(in JobInput) string {
	soil := in.SoilType
	if soil == "" {
		soil = SoilMixed
	}

	sides := "1 side settled"
	switch {
	case in.SidesSettled == EntireSlab:
		sides = "entire slab settled"
	case in.SidesSettled > 1:
		sides = strconv.Itoa(int(in.SidesSettled)) + " sides settled"
	}

	return fmt.Sprintf("Concrete leveling: %s x %s ft (%s sq ft), %s in lift, %s foam, %s, %s, %s soil",
		formatNumber(in.Length),
		formatNumber(in.Width),
		formatNumber(in.Length*in.Width),
		formatNumber(in.LiftInches),
		in.FoamType,
		in.ApplicationType,
		sides,
		soil,
	)
}

func validateDimensions(in JobInput) error {
	if !positive(in.Length) {
		return fieldError(ErrInvalidDimensions, "length", "must be greater than 0")
	}
	if !positive(in.Width) {
		return fieldError(ErrInvalidDimensions, "width", "must be greater than 0")
	}
	if !positive(in.LiftInches) {
		return fieldError(ErrInvalidDimensions, "lift_inches", "must be greater than 0")
	}
	if !nonNegative(in.TravelDistanceMiles) {
		return fieldError(ErrInvalidDimensions, "travel_distance_miles", "must be 0 or greater")
	}
	return nil
}

func validatePriceBounds(low, high float64) error {
	if !positive(low) {
		return fieldError(ErrInvalidPriceBounds, "price_per_pound_low", "must be greater than 0")
	}
	if !positive(high) {
		return fieldError(ErrInvalidPriceBounds, "price_per_pound_high", "must be greater than 0")
	}
	if low > high {
		return fieldError(ErrInvalidPriceBounds, "price_per_pound_low", "must not exceed price_per_pound_high")
	}
	return nil
}

func knownFoam(rates Rates, foam FoamType) bool {
	for _, app := range applicationTypes {
		if _, ok := rates.FoamFactors[FoamKey(foam, app)]; ok {
			return true
		}
	}
	return false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WithDefaultBounds fills the price-per-pound bounds from the rate table when
// the job leaves both unset.
func WithDefaultBounds(in JobInput, rates Rates) JobInput {
	if in.PricePerPoundLow == 0 && in.PricePerPoundHigh == 0 {
		in.PricePerPoundLow = rates.PricePerPoundLow
		in.PricePerPoundHigh = rates.PricePerPoundHigh
	}
	return in
}
