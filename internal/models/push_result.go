package models

// PushResult captures the delivery outcome per device token.
type PushResult struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
	Status   string `json:"status"`
	ApnsID   string `json:"apns_id,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

const (
	// ResultDelivered indicates the push was acknowledged by the provider.
	ResultDelivered = "delivered"
	// ResultFailed indicates retries were exhausted.
	ResultFailed = "failed"
	// ResultCanceled indicates retries were stopped because the failure was permanent.
	ResultCanceled = "canceled"
)
