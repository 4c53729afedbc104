package models

import "strings"

// PushToken represents a user device that can receive push notifications.
type PushToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	Provider string `json:"provider,omitempty"`
}

// PlatformCategory normalizes a platform string to one of the supported categories.
func PlatformCategory(platform string) string {
	switch strings.ToLower(platform) {
	case "ios", "ipados", "watchos", "macos":
		return "apple"
	case "android":
		return "android"
	case "web":
		return "web"
	default:
		return "unknown"
	}
}

// SupportsAPNS reports whether the token can be delivered through the Apple gateway.
func (t PushToken) SupportsAPNS() bool {
	if t.Provider != "" {
		return strings.EqualFold(t.Provider, "apns")
	}
	return PlatformCategory(t.Platform) == "apple"
}
