package apns

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(handler)
	srv.EnableHTTP2 = true
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransport_Send(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, 2, r.ProtoMajor)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/3/device/"+deviceToken('a'), r.URL.Path)
		assert.Equal(t, testBundle, r.Header.Get("apns-topic"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"aps":{"alert":"hello"}}`, string(body))

		w.Header().Set("apns-id", "EC1BF194-B3B2-424A-89A9-5A918A6E6B5A")
		w.WriteHeader(http.StatusOK)
	})

	transport := NewHTTPTransportWithClient(srv.Client())
	defer transport.Close()

	header := http.Header{}
	header.Set("apns-topic", testBundle)
	resp, err := transport.Send(context.Background(), &Request{
		URL:    srv.URL + "/3/device/" + deviceToken('a'),
		Method: http.MethodPost,
		Header: header,
		Body:   []byte(`{"aps":{"alert":"hello"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "EC1BF194-B3B2-424A-89A9-5A918A6E6B5A", resp.Header.Get("apns-id"))
}

func TestHTTPTransport_ConnectionError(t *testing.T) {
	srv := newGatewayServer(t, func(http.ResponseWriter, *http.Request) {})
	transport := NewHTTPTransportWithClient(srv.Client())
	url := srv.URL
	srv.Close()

	_, err := transport.Send(context.Background(), &Request{URL: url + "/3/device/x", Method: http.MethodPost, Header: http.Header{}})
	assert.Error(t, err)
}

func TestEngine_AgainstGateway(t *testing.T) {
	var calls int
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if strings.HasSuffix(r.URL.Path, deviceToken('b')) {
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"reason":"Unregistered","timestamp":1700000000000}`))
			return
		}
		w.Header().Set("apns-id", "EC1BF194-B3B2-424A-89A9-5A918A6E6B5A")
	})

	feedback := &feedbackLog{}
	engine := newTestEngine(NewHTTPTransportWithClient(srv.Client()), nil, Config{
		BaseURL:    srv.URL,
		RetryLimit: 2,
		Feedback:   feedback.hook,
	})

	require.NoError(t, engine.Enqueue(newTestMessage(t, deviceToken('a'), deviceToken('b'))))
	unsuccessful := engine.Drain(context.Background())

	assert.Equal(t, 3, calls)
	require.Len(t, unsuccessful, 1)
	assert.Equal(t, deviceToken('b'), unsuccessful[0].DeviceToken())
	last := unsuccessful[0].Status().Last()
	require.NotNil(t, last)
	assert.Equal(t, StatusDeviceTokenNoLongerActive, last.Kind)
	assert.Equal(t, "Unregistered", last.Reason)

	require.Len(t, feedback.envelopes, 2)
	assert.Equal(t, "EC1BF194-B3B2-424A-89A9-5A918A6E6B5A", feedback.envelopes[0].Status().ApnsID)
}
