package apns

import "encoding/json"

// SoundDefault plays the system notification sound.
const SoundDefault = "default"

// AlertDetail is the dictionary form of an alert.
type AlertDetail struct {
	Title        string   `json:"title,omitempty"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Body         string   `json:"body,omitempty"`
	TitleLocKey  string   `json:"title-loc-key,omitempty"`
	TitleLocArgs []string `json:"title-loc-args,omitempty"`
	ActionLocKey string   `json:"action-loc-key,omitempty"`
	LocKey       string   `json:"loc-key,omitempty"`
	LocArgs      []string `json:"loc-args,omitempty"`
	LaunchImage  string   `json:"launch-image,omitempty"`
}

// Alert is either a plain text message or a detailed dictionary.
type Alert struct {
	text   string
	detail *AlertDetail
}

// TextAlert builds an alert encoded as a bare string.
func TextAlert(text string) *Alert {
	return &Alert{text: text}
}

// DetailedAlert builds an alert encoded as a dictionary.
func DetailedAlert(detail AlertDetail) *Alert {
	detail.TitleLocArgs = append([]string(nil), detail.TitleLocArgs...)
	detail.LocArgs = append([]string(nil), detail.LocArgs...)
	return &Alert{detail: &detail}
}

func (a *Alert) MarshalJSON() ([]byte, error) {
	if a.detail != nil {
		return json.Marshal(a.detail)
	}
	return json.Marshal(a.text)
}

// Payload is the reserved notification object sent under the "aps" key.
type Payload struct {
	Alert            *Alert
	Badge            *int64
	Sound            string
	Category         string
	ContentAvailable bool
	MutableContent   bool
	ThreadID         string
}

type aps struct {
	Alert            *Alert `json:"alert,omitempty"`
	Badge            *int64 `json:"badge,omitempty"`
	Sound            string `json:"sound,omitempty"`
	Category         string `json:"category,omitempty"`
	ContentAvailable int    `json:"content-available,omitempty"`
	MutableContent   int    `json:"mutable-content,omitempty"`
	ThreadID         string `json:"thread-id,omitempty"`
}

// clone detaches the badge pointer so callers cannot change an encoded
// message behind its cache. Alerts are immutable once built.
func (p Payload) clone() Payload {
	if p.Badge != nil {
		badge := *p.Badge
		p.Badge = &badge
	}
	return p
}

func (p Payload) wire() aps {
	out := aps{
		Alert:    p.Alert,
		Badge:    p.Badge,
		Sound:    p.Sound,
		Category: p.Category,
		ThreadID: p.ThreadID,
	}
	if p.ContentAvailable {
		out.ContentAvailable = 1
	}
	if p.MutableContent {
		out.MutableContent = 1
	}
	return out
}

// background reports whether the payload only asks for a background refresh
// and carries nothing the user would see or hear. Only alert, badge and sound
// count as visible; category, thread-id, mutable-content and custom keys do not.
func (p Payload) background() bool {
	return p.ContentAvailable && p.Alert == nil && p.Badge == nil && p.Sound == ""
}
