package apns

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBundle = "com.example.app"

func deviceToken(c byte) string {
	return strings.Repeat(string(c), DeviceTokenLength)
}

func TestValidateDeviceToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "exactly 64 bytes", token: deviceToken('a')},
		{name: "63 bytes", token: strings.Repeat("a", 63), wantErr: true},
		{name: "65 bytes", token: strings.Repeat("a", 65), wantErr: true},
		{name: "empty", token: "", wantErr: true},
		{name: "multibyte characters counted as bytes", token: strings.Repeat("é", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceToken(tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncorrectDeviceTokenLength)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewMessage_RejectsBadToken(t *testing.T) {
	_, err := NewMessage(testBundle, deviceToken('a'), "short")
	assert.ErrorIs(t, err, ErrIncorrectDeviceTokenLength)
}

func TestMessage_EncodeIsCached(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(TextAlert("hello"))
	msg.SetBadge(2)

	first, err := msg.Encode()
	require.NoError(t, err)
	second, err := msg.Encode()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Same(t, &first[0], &second[0])
}

func TestMessage_SetterInvalidatesCache(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(TextAlert("hello"))

	before, err := msg.Encode()
	require.NoError(t, err)

	msg.SetSound(SoundDefault)
	after, err := msg.Encode()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Contains(t, string(after), `"sound":"default"`)
}

func TestMessage_PayloadGetterIsDetached(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(TextAlert("hello"))
	msg.SetBadge(1)

	cached, err := msg.Encode()
	require.NoError(t, err)

	*msg.Payload().Badge = 99
	assert.Equal(t, int64(1), *msg.Payload().Badge)

	msg.SetSound("")
	fresh, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, string(cached), string(fresh))
	assert.JSONEq(t, `{"aps":{"alert":"hello","badge":1}}`, string(fresh))
}

func TestMessage_SetPayloadKeepsOwnBadge(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	badge := int64(3)
	msg.SetPayload(Payload{Badge: &badge})

	before, err := msg.Encode()
	require.NoError(t, err)
	badge = 7
	msg.SetSound("")
	after, err := msg.Encode()
	require.NoError(t, err)

	assert.JSONEq(t, string(before), string(after))
	assert.JSONEq(t, `{"aps":{"badge":3}}`, string(after))
}

func TestDetailedAlert_CopiesArguments(t *testing.T) {
	args := []string{"Ada"}
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(DetailedAlert(AlertDetail{LocKey: "GREETING", LocArgs: args}))
	args[0] = "Bob"

	raw, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"aps":{"alert":{"loc-key":"GREETING","loc-args":["Ada"]}}}`, string(raw))
}

func TestMessage_EncodeMergesCustomPayload(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetCustomPayload(map[string]interface{}{
		"aps":      "overwritten",
		"order_id": "42",
	})
	msg.SetAlert(TextAlert("hi"))
	msg.SetThreadID("orders")
	msg.SetMutableContent(true)
	msg.SetBadge(0)

	raw, err := msg.Encode()
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "42", body["order_id"])

	aps, ok := body["aps"].(map[string]interface{})
	require.True(t, ok, "aps must be the reserved object")
	assert.Equal(t, "hi", aps["alert"])
	assert.Equal(t, "orders", aps["thread-id"])
	assert.Equal(t, float64(1), aps["mutable-content"])
	assert.Equal(t, float64(0), aps["badge"])
	assert.NotContains(t, aps, "content-available")
}

func TestMessage_EncodeDetailedAlert(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(DetailedAlert(AlertDetail{
		Title:       "Title",
		Body:        "Body",
		LocKey:      "GAME_INVITE",
		LocArgs:     []string{"Jenna"},
		LaunchImage: "launch.png",
	}))

	raw, err := msg.Encode()
	require.NoError(t, err)

	var body struct {
		Aps struct {
			Alert map[string]interface{} `json:"alert"`
		} `json:"aps"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Title", body.Aps.Alert["title"])
	assert.Equal(t, "GAME_INVITE", body.Aps.Alert["loc-key"])
	assert.Equal(t, []interface{}{"Jenna"}, body.Aps.Alert["loc-args"])
	assert.Equal(t, "launch.png", body.Aps.Alert["launch-image"])
	assert.NotContains(t, body.Aps.Alert, "action-loc-key")
}

func TestMessage_ValidatePriority(t *testing.T) {
	tests := []struct {
		name     string
		priority Priority
		visible  bool
		category string
		wantErr  error
	}{
		{name: "background with high priority", priority: PriorityHigh, wantErr: ErrIncorrectPriority},
		{name: "background with low priority", priority: PriorityLow},
		{name: "visible content with high priority", priority: PriorityHigh, visible: true},
		{name: "category is not visible content", priority: PriorityHigh, category: "MESSAGE", wantErr: ErrIncorrectPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(testBundle, deviceToken('a'))
			require.NoError(t, err)
			msg.SetContentAvailable(true)
			msg.SetPriority(tt.priority)
			if tt.visible {
				msg.SetAlert(TextAlert("visible"))
			}
			msg.SetCategory(tt.category)

			_, err = msg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMessage_ValidateCollapseID(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)

	msg.SetCollapseID(strings.Repeat("c", MaxCollapseIDLength))
	_, err = msg.Validate()
	assert.NoError(t, err)

	msg.SetCollapseID(strings.Repeat("c", MaxCollapseIDLength+1))
	_, err = msg.Validate()
	assert.ErrorIs(t, err, ErrCollapseIDTooLarge)
}

func TestMessage_ValidatePayloadSize(t *testing.T) {
	for _, mode := range []Mode{ModeRegular, ModeVoIP} {
		t.Run(mode.String(), func(t *testing.T) {
			msg, err := NewMessage(testBundle, deviceToken('a'))
			require.NoError(t, err)
			msg.SetMode(mode)
			msg.SetCustomValue("d", "")
			empty, err := msg.Encode()
			require.NoError(t, err)
			room := mode.MaximumSize() - len(empty)

			msg.SetCustomValue("d", strings.Repeat("a", room-1))
			data, err := msg.Validate()
			require.NoError(t, err)
			assert.Len(t, data, mode.MaximumSize()-1)

			msg.SetCustomValue("d", strings.Repeat("a", room))
			_, err = msg.Validate()
			assert.NoError(t, err)

			msg.SetCustomValue("d", strings.Repeat("a", room+1))
			_, err = msg.Validate()
			require.ErrorIs(t, err, ErrPayloadTooLarge)

			var sizeErr *PayloadTooLargeError
			require.True(t, errors.As(err, &sizeErr))
			assert.Equal(t, mode.MaximumSize(), sizeErr.MaxSize)
		})
	}
}

func TestMessage_ValidateRequiresBundle(t *testing.T) {
	msg, err := NewMessage("", deviceToken('a'))
	require.NoError(t, err)
	_, err = msg.Validate()
	assert.ErrorIs(t, err, ErrMissingAppBundle)
}

func TestExpirationHeader(t *testing.T) {
	value, ok := Expiration{}.header()
	assert.False(t, ok)
	assert.Empty(t, value)

	value, ok = ExpireImmediately().header()
	assert.True(t, ok)
	assert.Equal(t, "0", value)

	value, ok = ExpireAt(time.Unix(1700000000, 0)).header()
	assert.True(t, ok)
	assert.Equal(t, "1700000000", value)
}

func TestMessage_PushType(t *testing.T) {
	msg, err := NewMessage(testBundle, deviceToken('a'))
	require.NoError(t, err)
	msg.SetAlert(TextAlert("hi"))
	assert.Equal(t, "alert", msg.PushType())

	msg.SetAlert(nil)
	msg.SetContentAvailable(true)
	assert.Equal(t, "background", msg.PushType())

	msg.SetMode(ModeVoIP)
	assert.Equal(t, "voip", msg.PushType())
}
