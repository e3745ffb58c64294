package model

import (
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
)

type AdSession struct {
	TrackingID string         `json:"tracking_id"`
	ContentID  string         `json:"content_id"`
	UserID     string         `json:"user_id"`
	Platform   enums.Platform `json:"platform"`
	AdType     enums.AdType   `json:"ad_type"`
	StartTime  time.Time      `json:"start_time"`
}

type AdUnit struct {
	AdUnitID    string        `json:"ad_unit_id"`
	Provider    string        `json:"provider"`
	MinDuration time.Duration `json:"min_duration"`
	RewardType  string        `json:"reward_type"`
}

type AdCompletion struct {
	ContentID   string         `json:"content_id"`
	UserID      string         `json:"user_id"`
	Platform    enums.Platform `json:"platform"`
	AdType      enums.AdType   `json:"ad_type"`
	Duration    time.Duration  `json:"duration"`
	CompletedAt time.Time      `json:"completed_at"`
}

type AdStats struct {
	TotalAds    int64            `json:"total_ads"`
	ByPlatform  map[string]int64 `json:"by_platform"`
	ByContentID map[string]int64 `json:"by_content_id"`
}
