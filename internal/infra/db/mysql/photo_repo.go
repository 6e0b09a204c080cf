package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/photo-tagger/internal/domain/photos"
)

type PhotoRepository struct {
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

var _ domain.Repository = (*PhotoRepository)(nil)

const logColumns = `log_id, photo_id, user_id, model, analyzed_at,
       vision_response, places_response, semantic_response,
       status, processing_time_ms, quota_used, error_message`

const suggestionColumns = `s.suggestion_id, s.log_id, s.photo_id, s.category_id, c.category_name, c.category_type,
       s.tag_id, s.tag_name, s.confidence, s.source, s.is_adopted, s.created_at`

// GetPhoto loads a photo with its stored metadata
func (r *PhotoRepository) GetPhoto(ctx context.Context, photoID int64) (*domain.Photo, error) {
	const q = `
SELECT p.photo_id, p.user_id, p.file_name, p.original_data, p.thumbnail_data,
       m.photo_id, m.date_taken, m.latitude, m.longitude, m.camera_make, m.camera_model
FROM photos p
LEFT JOIN photo_metadata m ON m.photo_id = p.photo_id
WHERE p.photo_id=? LIMIT 1;
`
	var p domain.Photo
	var metaID sql.NullInt64
	var meta domain.Metadata
	var cameraMake, cameraModel sql.NullString
	err := r.db.QueryRowContext(ctx, q, photoID).Scan(
		&p.PhotoID, &p.UserID, &p.FileName, &p.OriginalData, &p.ThumbnailData,
		&metaID, &meta.DateTaken, &meta.Latitude, &meta.Longitude, &cameraMake, &cameraModel,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if metaID.Valid {
		meta.CameraMake, meta.CameraModel = cameraMake.String, cameraModel.String
		p.Metadata = &meta
	}
	return &p, nil
}

func (r *PhotoRepository) GetStorageLocations(ctx context.Context, photoID int64) ([]domain.StorageLocation, error) {
	const q = `
SELECT photo_id, path, is_primary
FROM photo_storage
WHERE photo_id=? ORDER BY is_primary DESC, storage_id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, photoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StorageLocation
	for rows.Next() {
		var l domain.StorageLocation
		if err := rows.Scan(&l.PhotoID, &l.Path, &l.IsPrimary); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// HasExistingAnalysis: hanya log Success yang dihitung
func (r *PhotoRepository) HasExistingAnalysis(ctx context.Context, photoID int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM photo_ai_logs WHERE photo_id=? AND status=?);`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, photoID, domain.StatusSuccess).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PhotoRepository) GetLatestLog(ctx context.Context, photoID int64) (*domain.AnalysisLog, error) {
	q := `SELECT ` + logColumns + `
FROM photo_ai_logs
WHERE photo_id=?
ORDER BY analyzed_at DESC, log_id DESC LIMIT 1;`
	l, err := scanLog(r.db.QueryRowContext(ctx, q, photoID))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// GetLatestSuccessfulLog ignores Failed attempts logged after the last success.
func (r *PhotoRepository) GetLatestSuccessfulLog(ctx context.Context, photoID int64) (*domain.AnalysisLog, error) {
	q := `SELECT ` + logColumns + `
FROM photo_ai_logs
WHERE photo_id=? AND status=?
ORDER BY analyzed_at DESC, log_id DESC LIMIT 1;`
	l, err := scanLog(r.db.QueryRowContext(ctx, q, photoID, domain.StatusSuccess))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *PhotoRepository) GetLatestLogByProvider(ctx context.Context, photoID int64, provider domain.Provider) (*domain.AnalysisLog, error) {
	col, ok := providerColumns[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	q := `SELECT ` + logColumns + `
FROM photo_ai_logs
WHERE photo_id=? AND ` + col + ` IS NOT NULL
ORDER BY analyzed_at DESC, log_id DESC LIMIT 1;`
	l, err := scanLog(r.db.QueryRowContext(ctx, q, photoID))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// SaveLog insert satu baris log, return id baru
func (r *PhotoRepository) SaveLog(ctx context.Context, l *domain.AnalysisLog) (int64, error) {
	const q = `
INSERT INTO photo_ai_logs
(photo_id, user_id, model, analyzed_at,
 vision_response, places_response, semantic_response,
 status, processing_time_ms, quota_used, error_message)
VALUES (?,?,?,?,?,?,?,?,?,?,?);
`
	analyzed := l.AnalyzedAt
	if analyzed.IsZero() {
		analyzed = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		l.PhotoID, l.UserID, stringOrDash(l.Model), analyzed,
		l.VisionResponse, l.PlacesResponse, l.SemanticResponse,
		stringOrDash(string(l.Status)), l.ProcessingTimeMS, l.QuotaUsed, nullIfEmpty(l.ErrorMessage),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *PhotoRepository) ListLogs(ctx context.Context, photoID int64, page, pageSize int) ([]*domain.AnalysisLog, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photo_ai_logs WHERE photo_id=?;`, photoID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting logs: %w", err)
	}

	q := `SELECT ` + logColumns + `
FROM photo_ai_logs
WHERE photo_id=?
ORDER BY analyzed_at DESC, log_id DESC
LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, q, photoID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnalysisLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// SaveSuggestions menyimpan semua suggestion dalam satu transaksi.
// Tag id di-resolve dari katalog tags berdasarkan nama; yang tidak ada
// disimpan tanpa tag id (kategori saja).
func (r *PhotoRepository) SaveSuggestions(ctx context.Context, list []*domain.TagSuggestion) ([]*domain.TagSuggestion, error) {
	if len(list) == 0 {
		return []*domain.TagSuggestion{}, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const insert = `
INSERT INTO photo_ai_suggestions
(log_id, photo_id, category_id, tag_id, tag_name, confidence, source, is_adopted, created_at)
VALUES (?,?,?,?,?,?,?,0,?);
`
	categories := map[int64][2]string{}
	out := make([]*domain.TagSuggestion, 0, len(list))
	for _, in := range list {
		sg := *in
		var tagID int64
		err := tx.QueryRowContext(ctx, `SELECT tag_id FROM tags WHERE tag_name=? LIMIT 1;`, sg.TagName).Scan(&tagID)
		switch {
		case err == sql.ErrNoRows:
			sg.TagID = nil
		case err != nil:
			return nil, fmt.Errorf("resolve tag %q: %w", sg.TagName, err)
		default:
			sg.TagID = &tagID
		}
		if sg.CreatedAt.IsZero() {
			sg.CreatedAt = time.Now().UTC()
		}

		res, err := tx.ExecContext(ctx, insert,
			sg.LogID, sg.PhotoID, sg.CategoryID, sg.TagID, sg.TagName, sg.Confidence, string(sg.Source), sg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert suggestion %q: %w", sg.TagName, err)
		}
		if sg.SuggestionID, err = res.LastInsertId(); err != nil {
			return nil, err
		}

		cat, ok := categories[sg.CategoryID]
		if !ok {
			var name, typ string
			err := tx.QueryRowContext(ctx, `SELECT category_name, category_type FROM categories WHERE category_id=?;`, sg.CategoryID).Scan(&name, &typ)
			if err != nil && err != sql.ErrNoRows {
				return nil, err
			}
			cat = [2]string{name, typ}
			categories[sg.CategoryID] = cat
		}
		sg.CategoryName, sg.CategoryType = cat[0], cat[1]
		out = append(out, &sg)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PhotoRepository) querySuggestions(ctx context.Context, q string, args ...any) ([]*domain.TagSuggestion, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.TagSuggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PhotoRepository) GetSuggestions(ctx context.Context, photoID int64) ([]*domain.TagSuggestion, error) {
	q := `SELECT ` + suggestionColumns + `
FROM photo_ai_suggestions s
LEFT JOIN categories c ON c.category_id = s.category_id
WHERE s.photo_id=?
ORDER BY s.confidence DESC, s.suggestion_id ASC;`
	return r.querySuggestions(ctx, q, photoID)
}

func (r *PhotoRepository) GetPendingSuggestions(ctx context.Context, photoID int64, minConfidence *float64) ([]*domain.TagSuggestion, error) {
	q := `SELECT ` + suggestionColumns + `
FROM photo_ai_suggestions s
LEFT JOIN categories c ON c.category_id = s.category_id
WHERE s.photo_id=? AND s.is_adopted=0`
	args := []any{photoID}
	if minConfidence != nil {
		q += " AND s.confidence >= ?"
		args = append(args, *minConfidence)
	}
	q += "\nORDER BY s.confidence DESC, s.suggestion_id ASC;"
	return r.querySuggestions(ctx, q, args...)
}

func (r *PhotoRepository) GetSuggestionByID(ctx context.Context, suggestionID int64) (*domain.TagSuggestion, error) {
	q := `SELECT ` + suggestionColumns + `
FROM photo_ai_suggestions s
LEFT JOIN categories c ON c.category_id = s.category_id
WHERE s.suggestion_id=? LIMIT 1;`
	s, err := scanSuggestion(r.db.QueryRowContext(ctx, q, suggestionID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *PhotoRepository) MarkSuggestionAdopted(ctx context.Context, suggestionID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE photo_ai_suggestions SET is_adopted=1 WHERE suggestion_id=?;`, suggestionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// sudah adopted juga 0 rows; cek apakah barisnya ada
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM photo_ai_suggestions WHERE suggestion_id=?);`, suggestionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}

func (r *PhotoRepository) HasPhotoTag(ctx context.Context, photoID, tagID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM photo_tags WHERE photo_id=? AND tag_id=?);`, photoID, tagID).Scan(&ok)
	return ok, err
}

// AddPhotoTag returns false when the link already existed.
func (r *PhotoRepository) AddPhotoTag(ctx context.Context, photoID, tagID int64, sourceID int, confidence float64, addedBy *int64) (bool, error) {
	const q = `
INSERT INTO photo_tags (photo_id, tag_id, source_id, confidence, added_by, added_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE photo_id=photo_id;
`
	res, err := r.db.ExecContext(ctx, q, photoID, tagID, sourceID, confidence, addedBy, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PhotoRepository) HasPhotoCategory(ctx context.Context, photoID, categoryID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM photo_categories WHERE photo_id=? AND category_id=?);`, photoID, categoryID).Scan(&ok)
	return ok, err
}

// AddPhotoCategory returns false when the link already existed.
func (r *PhotoRepository) AddPhotoCategory(ctx context.Context, photoID, categoryID int64, sourceID int, confidence float64, addedBy *int64) (bool, error) {
	const q = `
INSERT INTO photo_categories (photo_id, category_id, source_id, confidence, added_by, added_at)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE photo_id=photo_id;
`
	res, err := r.db.ExecContext(ctx, q, photoID, categoryID, sourceID, confidence, addedBy, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PhotoRepository) SuggestionStats(ctx context.Context, photoID int64) (domain.SuggestionStats, error) {
	const q = `
SELECT COUNT(*) AS total,
       COALESCE(SUM(is_adopted),0) AS adopted
FROM photo_ai_suggestions
WHERE photo_id=?;
`
	var st domain.SuggestionStats
	if err := r.db.QueryRowContext(ctx, q, photoID).Scan(&st.Total, &st.Adopted); err != nil {
		return st, err
	}
	st.Pending = st.Total - st.Adopted
	return st, nil
}

// UserStats rekap log + suggestion milik user
func (r *PhotoRepository) UserStats(ctx context.Context, userID int64) (*domain.UserStats, error) {
	const q = `
SELECT COUNT(*),
       COALESCE(SUM(status='Success'),0),
       COALESCE(SUM(status<>'Success'),0),
       COALESCE(SUM(quota_used),0),
       MAX(analyzed_at)
FROM photo_ai_logs
WHERE user_id=?;
`
	st := &domain.UserStats{UserID: userID}
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&st.TotalAnalyses, &st.SuccessfulAnalyses, &st.FailedAnalyses, &st.QuotaUsed, &st.LastAnalyzedAt,
	); err != nil {
		return nil, err
	}

	const qs = `
SELECT COUNT(*), COALESCE(SUM(s.is_adopted),0)
FROM photo_ai_suggestions s
JOIN photo_ai_logs l ON l.log_id = s.log_id
WHERE l.user_id=?;
`
	if err := r.db.QueryRowContext(ctx, qs, userID).Scan(&st.TotalSuggestions, &st.AdoptedSuggestions); err != nil {
		return nil, err
	}
	return st, nil
}
