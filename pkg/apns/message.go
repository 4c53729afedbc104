package apns

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// DeviceTokenLength is the encoded length of a hex device token.
	DeviceTokenLength = 64
	// MaxCollapseIDLength bounds apns-collapse-id.
	MaxCollapseIDLength = 64
)

// Priority maps to the apns-priority header.
type Priority int

const (
	PriorityHigh Priority = 10
	PriorityLow  Priority = 5
)

// Mode selects the notification kind and its payload size limit.
type Mode int

const (
	ModeRegular Mode = iota
	ModeVoIP
)

// MaximumSize returns the largest encoded payload accepted for the mode.
func (m Mode) MaximumSize() int {
	if m == ModeVoIP {
		return 5120
	}
	return 4096
}

func (m Mode) String() string {
	if m == ModeVoIP {
		return "voip"
	}
	return "regular"
}

type expirationKind int

const (
	expireDefault expirationKind = iota
	expireImmediately
	expireAt
)

// Expiration controls apns-expiration. The zero value leaves the header out
// and lets the gateway apply its own policy.
type Expiration struct {
	kind expirationKind
	at   time.Time
}

// ExpireImmediately asks the gateway to attempt delivery only once.
func ExpireImmediately() Expiration {
	return Expiration{kind: expireImmediately}
}

// ExpireAt keeps the notification until t.
func ExpireAt(t time.Time) Expiration {
	return Expiration{kind: expireAt, at: t}
}

func (e Expiration) header() (string, bool) {
	switch e.kind {
	case expireImmediately:
		return "0", true
	case expireAt:
		return strconv.FormatInt(e.at.Unix(), 10), true
	default:
		return "", false
	}
}

// Message is one logical notification addressed to one or more device tokens.
// Every setter that changes the encoded body drops the cached encoding.
type Message struct {
	deviceTokens []string
	appBundle    string
	customID     string
	collapseID   string
	priority     Priority
	mode         Mode
	expiration   Expiration
	payload      Payload
	custom       map[string]interface{}

	encoded []byte
}

// NewMessage creates a high priority regular message and checks the device tokens.
func NewMessage(appBundle string, deviceTokens ...string) (*Message, error) {
	m := &Message{
		appBundle:    appBundle,
		deviceTokens: append([]string(nil), deviceTokens...),
		priority:     PriorityHigh,
		mode:         ModeRegular,
	}
	if err := m.ValidateDeviceTokens(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) DeviceTokens() []string  { return append([]string(nil), m.deviceTokens...) }
func (m *Message) AppBundle() string       { return m.appBundle }
func (m *Message) CustomID() string        { return m.customID }
func (m *Message) CollapseID() string      { return m.collapseID }
func (m *Message) Priority() Priority      { return m.priority }
func (m *Message) Mode() Mode              { return m.mode }
func (m *Message) Expiration() Expiration  { return m.expiration }
func (m *Message) Payload() Payload        { return m.payload.clone() }
func (m *Message) SetCustomID(id string)   { m.customID = id }
func (m *Message) SetCollapseID(id string) { m.collapseID = id }
func (m *Message) SetPriority(p Priority)  { m.priority = p }
func (m *Message) SetExpiration(e Expiration) {
	m.expiration = e
}

func (m *Message) SetMode(mode Mode) {
	m.mode = mode
}

func (m *Message) SetDeviceTokens(tokens ...string) {
	m.deviceTokens = append([]string(nil), tokens...)
}

func (m *Message) SetPayload(p Payload) {
	m.payload = p.clone()
	m.invalidateCache()
}

func (m *Message) SetAlert(a *Alert) {
	m.payload.Alert = a
	m.invalidateCache()
}

func (m *Message) SetBadge(badge int64) {
	m.payload.Badge = &badge
	m.invalidateCache()
}

func (m *Message) ClearBadge() {
	m.payload.Badge = nil
	m.invalidateCache()
}

func (m *Message) SetSound(sound string) {
	m.payload.Sound = sound
	m.invalidateCache()
}

func (m *Message) SetCategory(category string) {
	m.payload.Category = category
	m.invalidateCache()
}

func (m *Message) SetContentAvailable(v bool) {
	m.payload.ContentAvailable = v
	m.invalidateCache()
}

func (m *Message) SetMutableContent(v bool) {
	m.payload.MutableContent = v
	m.invalidateCache()
}

func (m *Message) SetThreadID(id string) {
	m.payload.ThreadID = id
	m.invalidateCache()
}

// SetCustomPayload replaces the caller supplied top-level fields encoded next
// to "aps". An "aps" entry is always overwritten by the reserved payload.
func (m *Message) SetCustomPayload(custom map[string]interface{}) {
	m.custom = make(map[string]interface{}, len(custom))
	for k, v := range custom {
		m.custom[k] = v
	}
	m.invalidateCache()
}

func (m *Message) SetCustomValue(key string, value interface{}) {
	if m.custom == nil {
		m.custom = make(map[string]interface{})
	}
	m.custom[key] = value
	m.invalidateCache()
}

func (m *Message) invalidateCache() {
	m.encoded = nil
}

// PushType returns the apns-push-type header value for the message.
func (m *Message) PushType() string {
	switch {
	case m.mode == ModeVoIP:
		return "voip"
	case m.payload.background():
		return "background"
	default:
		return "alert"
	}
}

// ValidateDeviceToken checks a single token's encoded length.
func ValidateDeviceToken(token string) error {
	if len(token) != DeviceTokenLength {
		return fmt.Errorf("%w: got %d", ErrIncorrectDeviceTokenLength, len(token))
	}
	return nil
}

func (m *Message) ValidateDeviceTokens() error {
	for _, token := range m.deviceTokens {
		if err := ValidateDeviceToken(token); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the wire body. The result is cached until a payload setter
// is called and must be treated as read-only.
func (m *Message) Encode() ([]byte, error) {
	if m.encoded != nil {
		return m.encoded, nil
	}

	body := make(map[string]interface{}, len(m.custom)+1)
	for k, v := range m.custom {
		body[k] = v
	}
	body["aps"] = m.payload.wire()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("apns: encode payload: %w", err)
	}
	m.encoded = raw
	return raw, nil
}

// Validate checks the message against the gateway limits and returns the
// encoded body, populating the cache.
func (m *Message) Validate() ([]byte, error) {
	if m.appBundle == "" {
		return nil, ErrMissingAppBundle
	}
	if err := m.ValidateDeviceTokens(); err != nil {
		return nil, err
	}
	if len(m.collapseID) > MaxCollapseIDLength {
		return nil, ErrCollapseIDTooLarge
	}

	data, err := m.Encode()
	if err != nil {
		return nil, err
	}

	if m.payload.background() && m.priority != PriorityLow {
		return nil, ErrIncorrectPriority
	}
	if max := m.mode.MaximumSize(); len(data) > max {
		return nil, &PayloadTooLargeError{MaxSize: max, Size: len(data)}
	}
	return data, nil
}

// forDeviceToken returns a copy addressed to a single token. The copy shares
// the cached encoding.
func (m *Message) forDeviceToken(token string) *Message {
	cp := *m
	cp.deviceTokens = []string{token}
	return &cp
}
