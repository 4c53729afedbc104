package models

import "time"

// PushRequest is the payload produced by the API gateway and consumed by the push service.
type PushRequest struct {
	RequestID     string                 `json:"request_id"`
	CorrelationID string                 `json:"correlation_id"`
	CreatedAt     time.Time              `json:"created_at"`
	Channel       string                 `json:"channel"`
	AppBundle     string                 `json:"app_bundle,omitempty"`
	User          User                   `json:"user"`
	Notification  Notification           `json:"notification"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Options       DeliveryOptions        `json:"options"`
	RetryCount    int                    `json:"retry_count"`
}

type User struct {
	ID         string      `json:"id"`
	Locale     string      `json:"locale"`
	PushTokens []PushToken `json:"push_tokens"`
}

// Notification holds the visible content. Title and Body may contain
// {{placeholders}} filled from PushRequest.Variables.
type Notification struct {
	Title            string `json:"title,omitempty"`
	Subtitle         string `json:"subtitle,omitempty"`
	Body             string `json:"body,omitempty"`
	Sound            string `json:"sound,omitempty"`
	Category         string `json:"category,omitempty"`
	ThreadID         string `json:"thread_id,omitempty"`
	Badge            *int64 `json:"badge,omitempty"`
	ContentAvailable bool   `json:"content_available,omitempty"`
	MutableContent   bool   `json:"mutable_content,omitempty"`
}

// DeliveryOptions map onto the gateway request headers.
type DeliveryOptions struct {
	Priority          string     `json:"priority,omitempty"`
	Mode              string     `json:"mode,omitempty"`
	CollapseID        string     `json:"collapse_id,omitempty"`
	ApnsID            string     `json:"apns_id,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ExpireImmediately bool       `json:"expire_immediately,omitempty"`
}
