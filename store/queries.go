package store

import (
	"context"
	"time"
)

type TagStat struct {
	Name          string  `json:"name"`
	UsageCount    int64   `json:"usage_count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type TagCorrelation struct {
	Name        string `json:"name"`
	Correlation int64  `json:"correlation"`
}

type ConfidenceBucket struct {
	Confidence float64 `json:"confidence"`
	Count      int64   `json:"count"`
}

// UntaggedPhotos returns the processing backlog: photos the pipeline has
// not successfully completed yet.
func (s *Store) UntaggedPhotos(ctx context.Context) ([]Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, uploaded_at, tags_generated, caption
		FROM photos WHERE tags_generated = 0 ORDER BY uploaded_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []Photo{}
	for rows.Next() {
		var p Photo
		var generated int
		var uploaded int64
		if err := rows.Scan(&p.ID, &p.FilePath, &uploaded, &generated, &p.Caption); err != nil {
			return nil, err
		}
		p.UploadedAt = time.Unix(uploaded, 0)
		p.TagsGenerated = generated != 0
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// TagStats returns usage count and average confidence per tag, most used
// first.
func (s *Store) TagStats(ctx context.Context) ([]TagStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(pt.photo_id), AVG(pt.confidence)
		FROM tags t
		JOIN photo_tags pt ON t.id = pt.tag_id
		GROUP BY t.id
		ORDER BY COUNT(pt.photo_id) DESC, t.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []TagStat{}
	for rows.Next() {
		var st TagStat
		if err := rows.Scan(&st.Name, &st.UsageCount, &st.AvgConfidence); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RelatedTags finds tags co-occurring with the named tag on at least
// minCorrelation photos.
func (s *Store) RelatedTags(ctx context.Context, name string, minCorrelation int64) ([]TagCorrelation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(pt.photo_id) AS correlation
		FROM tags t
		JOIN photo_tags pt ON t.id = pt.tag_id
		WHERE pt.photo_id IN (
			SELECT pt2.photo_id FROM photo_tags pt2
			JOIN tags t2 ON pt2.tag_id = t2.id
			WHERE t2.name = ?
		) AND t.name != ?
		GROUP BY t.id
		HAVING COUNT(pt.photo_id) >= ?
		ORDER BY correlation DESC, t.name ASC
	`, NormalizeTag(name), NormalizeTag(name), minCorrelation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	related := []TagCorrelation{}
	for rows.Next() {
		var tc TagCorrelation
		if err := rows.Scan(&tc.Name, &tc.Correlation); err != nil {
			return nil, err
		}
		related = append(related, tc)
	}
	return related, rows.Err()
}

// CleanupUnusedTags removes tags with no photo associations and returns how
// many were deleted.
func (s *Store) CleanupUnusedTags(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM photo_tags)
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConfidenceDistribution buckets association confidences to one decimal
// place.
func (s *Store) ConfidenceDistribution(ctx context.Context) ([]ConfidenceBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ROUND(confidence, 1) AS bucket, COUNT(*)
		FROM photo_tags
		GROUP BY bucket
		ORDER BY bucket ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []ConfidenceBucket{}
	for rows.Next() {
		var b ConfidenceBucket
		if err := rows.Scan(&b.Confidence, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
