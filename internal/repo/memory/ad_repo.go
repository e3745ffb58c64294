package memory

import (
	"context"
	"sync"

	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type AdCompletionRepo struct {
	mu          sync.Mutex
	completions []model.AdCompletion
}

func NewAdCompletionRepo() *AdCompletionRepo {
	return &AdCompletionRepo{}
}

func (r *AdCompletionRepo) Append(_ context.Context, completion model.AdCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, completion)
	return nil
}

func (r *AdCompletionRepo) Stats(_ context.Context) (model.AdStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := model.AdStats{ByPlatform: map[string]int64{}, ByContentID: map[string]int64{}}
	for _, c := range r.completions {
		stats.TotalAds++
		stats.ByPlatform[string(c.Platform)]++
		stats.ByContentID[c.ContentID]++
	}
	return stats, nil
}
