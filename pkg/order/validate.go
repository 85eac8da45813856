package order

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Reason classifies why an input was rejected.
type Reason string

const (
	ReasonEmpty        Reason = "empty"
	ReasonNotANumber   Reason = "not_a_number"
	ReasonNotAnInteger Reason = "not_an_integer"
	ReasonNotPositive  Reason = "not_positive"
)

// ValidationError reports a rejected input as an explicit value result.
// The machine never advances or mutates fields when one is returned; the
// user simply retries the same field.
type ValidationError struct {
	Field  string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// parseText accepts any non-empty text verbatim, trimming nothing: the
// stored value is exactly what the user typed.
func parseText(field, raw string) (string, *ValidationError) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Field: field, Reason: ReasonEmpty}
	}
	return raw, nil
}

// parsePrice parses a strictly positive decimal. An explicit sign is not
// accepted: "+3" reads as malformed, "-5" surfaces the positivity error.
func parsePrice(raw string) (decimal.Decimal, *ValidationError) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "+") {
		return decimal.Decimal{}, &ValidationError{Field: FieldPrice, Reason: ReasonNotANumber}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Field: FieldPrice, Reason: ReasonNotANumber}
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, &ValidationError{Field: FieldPrice, Reason: ReasonNotPositive}
	}
	return d, nil
}

// parseQuantity parses a strictly positive integer literal. Decimal input
// like "2.5" is rejected outright, never truncated.
func parseQuantity(raw string) (int64, *ValidationError) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "+") {
		return 0, &ValidationError{Field: FieldQuantity, Reason: ReasonNotAnInteger}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: FieldQuantity, Reason: ReasonNotAnInteger}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: FieldQuantity, Reason: ReasonNotPositive}
	}
	return n, nil
}
