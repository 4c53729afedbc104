package apns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ReasonExpiredProviderToken is the 403 reason sent when the bearer token
// has been invalidated by the gateway.
const ReasonExpiredProviderToken = "ExpiredProviderToken"

// StatusKind discriminates Status.
type StatusKind int

const (
	StatusNotSent StatusKind = iota
	StatusSuccessfullySent
	StatusEnqueuedForResend
	StatusSendingFailed
	StatusMissingResponse
	StatusIncorrectRequest
	StatusIncorrectCertificate
	StatusIncorrectPath
	StatusIncorrectRequestMethod
	StatusDeviceTokenNoLongerActive
	StatusPayloadTooLarge
	StatusTooManyRequests
	StatusServerInternalError
	StatusServerShutdown
	StatusUnknown
	StatusExceededSendingLimit
	StatusResendingCanceled
)

var statusKindNames = map[StatusKind]string{
	StatusNotSent:                   "notSent",
	StatusSuccessfullySent:          "successfullySent",
	StatusEnqueuedForResend:         "enqueuedForResend",
	StatusSendingFailed:             "sendingFailed",
	StatusMissingResponse:           "missingResponse",
	StatusIncorrectRequest:          "incorrectRequest",
	StatusIncorrectCertificate:      "incorrectCertificate",
	StatusIncorrectPath:             "incorrectPath",
	StatusIncorrectRequestMethod:    "incorrectRequestMethod",
	StatusDeviceTokenNoLongerActive: "deviceTokenNoLongerActive",
	StatusPayloadTooLarge:           "payloadTooLarge",
	StatusTooManyRequests:           "tooManyRequestsForGivenToken",
	StatusServerInternalError:       "serverInternalError",
	StatusServerShutdown:            "serverShutdown",
	StatusUnknown:                   "unknown",
	StatusExceededSendingLimit:      "exceededSendingLimit",
	StatusResendingCanceled:         "resendingCanceled",
}

func (k StatusKind) String() string {
	if name, ok := statusKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is the delivery state of one envelope. Wrapping states
// (enqueuedForResend, sendingFailed, exceededSendingLimit, resendingCanceled)
// keep the state they wrap in Previous.
type Status struct {
	Kind StatusKind
	// ApnsID is the gateway assigned id of a successful send, if returned.
	ApnsID string
	// Reason and Timestamp come from the gateway failure body.
	Reason    string
	Timestamp int64
	// StatusCode and Body hold the raw response for unknown outcomes.
	StatusCode int
	Body       []byte
	Err        error
	Previous   *Status
}

// RawValue is 0 for success and non-zero for everything else.
func (s Status) RawValue() int {
	switch s.Kind {
	case StatusSuccessfullySent:
		return 0
	case StatusNotSent:
		return -1
	case StatusUnknown:
		return -2
	case StatusEnqueuedForResend:
		return 1
	case StatusSendingFailed:
		return 2
	case StatusMissingResponse:
		return 3
	case StatusExceededSendingLimit:
		return 4
	case StatusResendingCanceled:
		return 5
	case StatusIncorrectRequest:
		return http.StatusBadRequest
	case StatusIncorrectCertificate:
		return http.StatusForbidden
	case StatusIncorrectPath:
		return http.StatusNotFound
	case StatusIncorrectRequestMethod:
		return http.StatusMethodNotAllowed
	case StatusDeviceTokenNoLongerActive:
		return http.StatusGone
	case StatusPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusServerInternalError:
		return http.StatusInternalServerError
	case StatusServerShutdown:
		return http.StatusServiceUnavailable
	default:
		return -2
	}
}

func (s Status) Success() bool {
	return s.Kind == StatusSuccessfullySent
}

// Terminal reports whether no further send will be attempted.
func (s Status) Terminal() bool {
	switch s.Kind {
	case StatusSuccessfullySent, StatusExceededSendingLimit, StatusResendingCanceled:
		return true
	default:
		return false
	}
}

// Inner unwraps an enqueuedForResend status to the outcome that caused it.
func (s Status) Inner() Status {
	if s.Kind == StatusEnqueuedForResend && s.Previous != nil {
		return *s.Previous
	}
	return s
}

// Last returns the outcome behind a terminal failure or a transport error.
func (s Status) Last() *Status {
	switch s.Kind {
	case StatusSendingFailed:
		if s.Previous != nil && s.Previous.Kind == StatusEnqueuedForResend {
			return s.Previous.Previous
		}
		return s.Previous
	case StatusExceededSendingLimit, StatusResendingCanceled, StatusEnqueuedForResend:
		return s.Previous
	default:
		return nil
	}
}

// TokenExpired reports whether the gateway rejected the bearer token as stale.
func (s Status) TokenExpired() bool {
	return s.Kind == StatusIncorrectCertificate && s.Reason == ReasonExpiredProviderToken
}

// Time converts the failure timestamp (milliseconds since epoch) of a
// deviceTokenNoLongerActive status.
func (s Status) Time() time.Time {
	if s.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.Timestamp)
}

func (s Status) String() string {
	switch s.Kind {
	case StatusSuccessfullySent:
		if s.ApnsID == "" {
			return s.Kind.String()
		}
		return fmt.Sprintf("%s(%s)", s.Kind, s.ApnsID)
	case StatusEnqueuedForResend, StatusExceededSendingLimit, StatusResendingCanceled:
		if s.Previous == nil {
			return s.Kind.String()
		}
		return fmt.Sprintf("%s(%s)", s.Kind, s.Previous)
	case StatusSendingFailed:
		return fmt.Sprintf("%s(%v)", s.Kind, s.Err)
	case StatusUnknown:
		return fmt.Sprintf("%s(%d, %s)", s.Kind, s.StatusCode, s.Reason)
	default:
		if s.Reason != "" {
			return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
		}
		return s.Kind.String()
	}
}

type failureBody struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Classify turns a transport outcome into a Status. previous is the state the
// envelope was in before the send.
func Classify(resp *Response, err error, previous Status) Status {
	if err != nil {
		failed := Status{Kind: StatusSendingFailed, Err: err}
		if previous.Kind != StatusNotSent {
			failed.Previous = &previous
		}
		return failed
	}
	if resp == nil {
		return Status{Kind: StatusMissingResponse}
	}

	if resp.StatusCode == http.StatusOK {
		return Status{
			Kind:       StatusSuccessfullySent,
			ApnsID:     resp.Header.Get("apns-id"),
			StatusCode: resp.StatusCode,
		}
	}

	var failure failureBody
	if len(resp.Body) > 0 {
		// an unparsable body leaves the reason empty
		_ = json.Unmarshal(resp.Body, &failure)
	}

	status := Status{
		Reason:     failure.Reason,
		Timestamp:  failure.Timestamp,
		StatusCode: resp.StatusCode,
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		status.Kind = StatusIncorrectRequest
	case http.StatusForbidden:
		status.Kind = StatusIncorrectCertificate
	case http.StatusNotFound:
		status.Kind = StatusIncorrectPath
	case http.StatusMethodNotAllowed:
		status.Kind = StatusIncorrectRequestMethod
	case http.StatusGone:
		status.Kind = StatusDeviceTokenNoLongerActive
	case http.StatusRequestEntityTooLarge:
		status.Kind = StatusPayloadTooLarge
	case http.StatusTooManyRequests:
		status.Kind = StatusTooManyRequests
	case http.StatusInternalServerError:
		status.Kind = StatusServerInternalError
	case http.StatusServiceUnavailable:
		status.Kind = StatusServerShutdown
	default:
		status.Kind = StatusUnknown
		status.Body = resp.Body
	}
	return status
}
