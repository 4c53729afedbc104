package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushToken_SupportsAPNS(t *testing.T) {
	tests := []struct {
		name  string
		token PushToken
		want  bool
	}{
		{name: "ios", token: PushToken{Platform: "iOS"}, want: true},
		{name: "macos", token: PushToken{Platform: "macos"}, want: true},
		{name: "android", token: PushToken{Platform: "android"}, want: false},
		{name: "explicit provider wins", token: PushToken{Platform: "android", Provider: "APNS"}, want: true},
		{name: "fcm provider on ios", token: PushToken{Platform: "ios", Provider: "fcm"}, want: false},
		{name: "unknown", token: PushToken{Platform: "tizen"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.SupportsAPNS())
		})
	}
}
