package mysql

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// nullIfEmpty stores empty strings as NULL
func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// notFound maps sql.ErrNoRows to the domain sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return photos.ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (*photos.AnalysisLog, error) {
	var l photos.AnalysisLog
	var errMsg sql.NullString
	if err := row.Scan(
		&l.LogID, &l.PhotoID, &l.UserID, &l.Model, &l.AnalyzedAt,
		&l.VisionResponse, &l.PlacesResponse, &l.SemanticResponse,
		&l.Status, &l.ProcessingTimeMS, &l.QuotaUsed, &errMsg,
	); err != nil {
		return nil, err
	}
	l.ErrorMessage = errMsg.String
	return &l, nil
}

func scanSuggestion(row rowScanner) (*photos.TagSuggestion, error) {
	var s photos.TagSuggestion
	var catName, catType sql.NullString
	if err := row.Scan(
		&s.SuggestionID, &s.LogID, &s.PhotoID, &s.CategoryID, &catName, &catType,
		&s.TagID, &s.TagName, &s.Confidence, &s.Source, &s.IsAdopted, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.CategoryName, s.CategoryType = catName.String, catType.String
	return &s, nil
}

// providerColumns whitelists the payload column per provider.
var providerColumns = map[photos.Provider]string{
	photos.ProviderVision:   "vision_response",
	photos.ProviderPlaces:   "places_response",
	photos.ProviderSemantic: "semantic_response",
}
