package ops

import (
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/citelens/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// MaxLabelChars caps the length of an interaction label.
const MaxLabelChars = 200

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ValidateID trims id and rejects empty values.
func ValidateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// NormalizeLabel trims a label. Blank labels become nil.
func NormalizeLabel(label *string) (*string, error) {
	if label == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*label)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > MaxLabelChars {
		return nil, errors.NewInvalidRequest("label must be at most 200 characters")
	}
	return &trimmed, nil
}

// clampPage applies list limit defaults and bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}
