package ads

import (
	"context"

	"github.com/google/uuid"

	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

type LoadResult struct {
	Loaded bool
	AdID   string
	Reason string
}

type Corroboration struct {
	Valid  bool
	Reason string
}

// Provider stands in for an ad network SDK. Real integrations implement it
// against the network's server-side callbacks.
type Provider interface {
	Load(ctx context.Context, unit model.AdUnit) (LoadResult, error)
	Corroborate(ctx context.Context, trackingID string, session model.AdSession) (Corroboration, error)
}

// StubProvider loads and corroborates every view.
type StubProvider struct{}

func (StubProvider) Load(ctx context.Context, unit model.AdUnit) (LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Loaded: true, AdID: unit.Provider + "-" + uuid.NewString()}, nil
}

func (StubProvider) Corroborate(ctx context.Context, _ string, _ model.AdSession) (Corroboration, error) {
	if err := ctx.Err(); err != nil {
		return Corroboration{}, err
	}
	return Corroboration{Valid: true}, nil
}
