package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

// AdCompletionRepo is the analytics log of verified ad views.
type AdCompletionRepo struct {
	pool *pgxpool.Pool
}

func NewAdCompletionRepo(pool *pgxpool.Pool) *AdCompletionRepo {
	return &AdCompletionRepo{pool: pool}
}

func (r *AdCompletionRepo) Append(ctx context.Context, completion model.AdCompletion) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO ad_completions (content_id, user_id, platform, ad_type, duration_ms, completed_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, completion.ContentID, completion.UserID, string(completion.Platform), string(completion.AdType),
		completion.Duration.Milliseconds(), completion.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("append ad completion: %w", err)
	}

	return nil
}

func (r *AdCompletionRepo) Stats(ctx context.Context) (model.AdStats, error) {
	if r.pool == nil {
		return model.AdStats{}, fmt.Errorf("postgres pool is nil")
	}

	stats := model.AdStats{ByPlatform: map[string]int64{}, ByContentID: map[string]int64{}}

	rows, err := r.pool.Query(ctx, `
SELECT platform, content_id, COUNT(*)
FROM ad_completions
GROUP BY platform, content_id
`)
	if err != nil {
		return model.AdStats{}, fmt.Errorf("ad stats: %w", err)
	}
	defer rows.Close()

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
