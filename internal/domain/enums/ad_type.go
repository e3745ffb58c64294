package enums

import "strings"

type AdType string

const (
	AdTypeRewarded     AdType = "rewarded"
	AdTypeInterstitial AdType = "interstitial"
)

func NormalizeAdType(raw string) AdType {
	return AdType(strings.ToLower(strings.TrimSpace(raw)))
}
