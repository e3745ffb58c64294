package sqlite

import (
	"context"
	"fmt"

	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type AdCompletionRepo struct {
	db *DB
}

func NewAdCompletionRepo(db *DB) *AdCompletionRepo {
	return &AdCompletionRepo{db: db}
}

func (r *AdCompletionRepo) Append(ctx context.Context, completion model.AdCompletion) error {
	if r.db == nil || r.db.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := r.db.sqlDB.ExecContext(ctx, `
INSERT INTO ad_completions (content_id, user_id, platform, ad_type, duration_ms, completed_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		completion.ContentID,
		completion.UserID,
		string(completion.Platform),
		string(completion.AdType),
		completion.Duration.Milliseconds(),
		toMillis(completion.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("append ad completion: %w", err)
	}
	return nil
}

func (r *AdCompletionRepo) Stats(ctx context.Context) (model.AdStats, error) {
	if r.db == nil || r.db.sqlDB == nil {
		return model.AdStats{}, fmt.Errorf("storage is not configured")
	}

	rows, err := r.db.sqlDB.QueryContext(ctx,
		`SELECT platform, content_id, COUNT(*) FROM ad_completions GROUP BY platform, content_id`,
	)
	if err != nil {
		return model.AdStats{}, fmt.Errorf("ad stats: %w", err)
	}
	defer rows.Close()

	stats := model.AdStats{ByPlatform: map[string]int64{}, ByContentID: map[string]int64{}}
	for rows.Next() {
		var (
			platform  string
			contentID string
			count     int64
		)
		if err := rows.Scan(&platform, &contentID, &count); err != nil {
			return model.AdStats{}, fmt.Errorf("scan ad stats: %w", err)
		}
		stats.TotalAds += count
		stats.ByPlatform[platform] += count
		stats.ByContentID[contentID] += count
	}
	if err := rows.Err(); err != nil {
		return model.AdStats{}, fmt.Errorf("iterate ad stats: %w", err)
	}
	return stats, nil
}
