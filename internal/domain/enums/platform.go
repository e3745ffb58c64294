package enums

import "strings"

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWindows Platform = "windows"
)

func NormalizePlatform(raw string) Platform {
	return Platform(strings.ToLower(strings.TrimSpace(raw)))
}

func (p Platform) Supported() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWindows:
		return true
	default:
		return false
	}
}
