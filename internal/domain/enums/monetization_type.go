package enums

import "strings"

type MonetizationType string

const (
	MonetizationFree MonetizationType = "free"
	MonetizationAd   MonetizationType = "ad"
	MonetizationPaid MonetizationType = "paid"
)

// ParseMonetizationType maps empty or unknown values to free, matching how the
// editor saves nodes that never had monetization configured.
func ParseMonetizationType(raw string) MonetizationType {
	switch MonetizationType(strings.ToLower(strings.TrimSpace(raw))) {
	case MonetizationAd:
		return MonetizationAd
	case MonetizationPaid:
		return MonetizationPaid
	default:
		return MonetizationFree
	}
}
