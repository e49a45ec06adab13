package pricing

import "errors"

var (
	// ErrInvalidDimensions reports a length, width, lift or travel distance outside its domain.
	ErrInvalidDimensions = errors.New("invalid dimensions")
	// ErrMissingSelection reports an absent or unrecognized enumerated field.
	ErrMissingSelection = errors.New("missing selection")
	// ErrInvalidPriceBounds reports a non-positive or inverted price per pound range.
	ErrInvalidPriceBounds = errors.New("invalid price bounds")
	// ErrInvalidRates reports a rate table that cannot price a job.
	ErrInvalidRates = errors.New("invalid rates")
)

// FieldError ties a validation failure to the input field that caused it.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(err error, field, reason string) error {
	return &FieldError{Field: field, Reason: reason, Err: err}
}

// Outcome classifies a calculation error for counting; nil is "ok".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidDimensions):
		return "invalid_dimensions"
	case errors.Is(err, ErrMissingSelection):
		return "missing_selection"
	case errors.Is(err, ErrInvalidPriceBounds):
		return "invalid_price_bounds"
	case errors.Is(err, ErrInvalidRates):
		return "invalid_rates"
	}
	return "error"
}
