package registry

import (
	"errors"
	"fmt"
)

// Category normalizes why an upstream request produced no data.
type Category string

const (
	CategoryTimeout   Category = "timeout"
	CategoryTransport Category = "transport"
	CategoryStatus    Category = "bad_status"
	CategoryBadData   Category = "bad_data"
	CategoryRejected  Category = "rejected"
)

// UpstreamError is a failed registry page. It is always absorbed by callers:
// the month is treated as having no further data.
type UpstreamError struct {
	Category   Category
	Endpoint   string
	YearMonth  string
	Page       int
	Underlying error
}

func (e *UpstreamError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry %s %s page %d [%s]: %v", e.Endpoint, e.YearMonth, e.Page, e.Category, e.Underlying)
	}
	return fmt.Sprintf("registry %s %s page %d [%s]", e.Endpoint, e.YearMonth, e.Page, e.Category)
}

func (e *UpstreamError) Unwrap() error {
	return e.Underlying
}

// AsUpstream extracts an UpstreamError from err.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
