package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// MaxBatchSize caps photo ids per batch request.
const MaxBatchSize = 500

// ParseID validates a positive numeric path id.
func ParseID(name, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s cannot be empty", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// ParseProvider accepts vision, places or semantic (case-insensitive).
func ParseProvider(raw string) (photos.Provider, error) {
	p := photos.Provider(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid provider: %s (allowed: vision, places, semantic)", raw)
	}
	return p, nil
}

// ParseConfidence parses an optional 0..1 query value; empty returns nil.
func ParseConfidence(raw string) (*float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return nil, fmt.Errorf("min_confidence must be a number between 0 and 1")
	}
	return &v, nil
}

// ValidateIDs rejects empty, oversized or non-positive id lists.
func ValidateIDs(name string, ids []int64, max int) error {
	if len(ids) == 0 {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if max > 0 && len(ids) > max {
		return fmt.Errorf("too many %s: %d (max %d)", name, len(ids), max)
	}
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("invalid id in %s: %d", name, id)
		}
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage clamps page numbers to at least 1.
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
