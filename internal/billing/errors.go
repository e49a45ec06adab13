package billing

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrNotEditable       = errors.New("document is not editable in its current status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrItemNotFound      = errors.New("line item not found")
)

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
