package ads

import (
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const DefaultFallbackDuration = 15 * time.Second

// Units is the ad unit catalog keyed by platform and ad type.
type Units struct {
	units    map[enums.Platform]map[enums.AdType]model.AdUnit
	fallback time.Duration
}

func NewUnits(fallback time.Duration) *Units {
	if fallback <= 0 {
		fallback = DefaultFallbackDuration
	}
	return &Units{
		units:    make(map[enums.Platform]map[enums.AdType]model.AdUnit),
		fallback: fallback,
	}
}

func (u *Units) Add(platform enums.Platform, adType enums.AdType, unit model.AdUnit) {
	byType, ok := u.units[platform]
	if !ok {
		byType = make(map[enums.AdType]model.AdUnit)
		u.units[platform] = byType
	}
	byType[adType] = unit
}

func (u *Units) Lookup(platform enums.Platform, adType enums.AdType) (model.AdUnit, bool) {
	unit, ok := u.units[platform][adType]
	return unit, ok
}

// MinDuration is the shortest watch time accepted for a completed view.
func (u *Units) MinDuration(platform enums.Platform, adType enums.AdType) time.Duration {
	if unit, ok := u.Lookup(platform, adType); ok && unit.MinDuration > 0 {
		return unit.MinDuration
	}
	return u.fallback
}
