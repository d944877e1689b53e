// Package errors classifies pipeline failures into the stable error
// taxonomy surfaced to callers. Reasons are machine codes; the offending
// text itself never rides an error value.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Category string

const (
	CategoryInvalidInput   Category = "invalid_input"
	CategoryInfrastructure Category = "infrastructure"
	CategoryContract       Category = "contract_violation"
	CategorySafety         Category = "safety_violation"
	CategoryInternal       Category = "internal_failure"
)

// Stable wire error codes.
const (
	CodeEmptyInputSet    = "EMPTY_INPUT_SET"
	CodeInputGateFailed  = "INPUT_GATE_FAILED"
	CodeOffline          = "FORTKNOX_OFFLINE"
	CodeRemoteError      = "REMOTE_ERROR"
	CodeSchemaValidation = "SCHEMA_VALIDATION_ERROR"
	CodeOutputGateFailed = "OUTPUT_GATE_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

type classifiedError struct {
	category  Category
	code      string
	reasons   []string
	detail    string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if len(e.reasons) > 0 {
		return fmt.Sprintf("%s: %s", e.code, strings.Join(e.reasons, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.code, e.cause.Error())
	}
	return e.code
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// New builds a classified error with deduplicated, sorted reason codes.
func New(category Category, code string, reasons []string, detail string, retryable bool) error {
	return &classifiedError{
		category:  category,
		code:      code,
		reasons:   uniqueSorted(reasons),
		detail:    detail,
		retryable: retryable,
	}
}

// Wrap classifies an underlying cause without adding reason codes.
func Wrap(cause error, category Category, code string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		retryable: retryable,
		cause:     cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func ReasonsOf(err error) []string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.reasons
	}
	return nil
}

func DetailOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.detail
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
