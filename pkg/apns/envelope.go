package apns

// Envelope is one delivery attempt record for a message and a single device
// token. Only the engine mutates it.
type Envelope struct {
	message        *Message
	deviceToken    string
	encodedPayload []byte
	status         Status
	retriesCount   int
	tokenRefreshed bool
}

func newEnvelope(msg *Message, deviceToken string, encoded []byte) *Envelope {
	return &Envelope{
		message:        msg.forDeviceToken(deviceToken),
		deviceToken:    deviceToken,
		encodedPayload: encoded,
		status:         Status{Kind: StatusNotSent},
	}
}

func (e *Envelope) Message() *Message { return e.message }
func (e *Envelope) DeviceToken() string { return e.deviceToken }
func (e *Envelope) Status() Status { return e.status }
func (e *Envelope) RetriesCount() int { return e.retriesCount }

// EncodedPayload is shared by every envelope of the same message and must not
// be modified.
func (e *Envelope) EncodedPayload() []byte { return e.encodedPayload }

// History lists the states the envelope went through, oldest first.
func (e *Envelope) History() []Status {
	var chain []Status
	for s := &e.status; s != nil; s = s.Previous {
		chain = append(chain, *s)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// transition records next as the current status, linking the prior one for
// history when next does not already wrap it.
func (e *Envelope) transition(next Status) {
	if next.Previous == nil && e.status.Kind != StatusNotSent {
		prior := e.status
		next.Previous = &prior
	}
	e.status = next
}
