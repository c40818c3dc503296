package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/styxit/spoof/internal/signature"
)

type captured struct {
	method  string
	headers http.Header
	body    []byte
}

func newCaptureServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.headers = r.Header.Clone()
		got.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func signedRequest(t *testing.T, url string, payload []byte) Request {
	t.Helper()
	signer, err := signature.New([]byte("testsecret"))
	require.NoError(t, err)
	return Request{
		URL:          url,
		Event:        "merge_pull_request",
		DeliveryID:   "d2c4c5b0-0000-4000-8000-000000000001",
		Payload:      payload,
		Signature:    signer.Sign(payload),
		Signature256: signer.Sign256(payload),
	}
}

func TestDeliverSendsSignedPayload(t *testing.T) {
	srv, got := newCaptureServer(t, http.StatusOK, "ok")
	payload := []byte(`{"action":"closed","ref":"feature/\"x\""}`)
	req := signedRequest(t, srv.URL, payload)

	client := NewClient(time.Second, WithLogger(zerolog.Nop()))
	resp, err := client.Deliver(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, payload, got.body)
	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
	assert.Equal(t, "merge_pull_request", got.headers.Get(HeaderEvent))
	assert.Equal(t, req.DeliveryID, got.headers.Get(HeaderDelivery))
	assert.Equal(t, UserAgent, got.headers.Get("User-Agent"))
	assert.Equal(t, "sha1="+req.Signature, got.headers.Get(signature.HeaderSHA1))

	// The receiver recomputes the HMAC over the bytes it actually got.
	secret := []byte("testsecret")
	assert.NoError(t, signature.Verify(secret, got.body, got.headers.Get(signature.HeaderSHA1)))
	assert.NoError(t, signature.Verify(secret, got.body, got.headers.Get(signature.HeaderSHA256)))
}

func TestDeliverReturnsErrorStatusAsResponse(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusForbidden, "bad signature")

	client := NewClient(time.Second, WithLogger(zerolog.Nop()))
	resp, err := client.Deliver(context.Background(), signedRequest(t, srv.URL, []byte(`{}`)))
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "bad signature", string(resp.Body))
}

func TestDeliverRequiresURL(t *testing.T) {
	client := NewClient(0, WithLogger(zerolog.Nop()))
	_, err := client.Deliver(context.Background(), Request{Payload: []byte(`{}`)})
	assert.True(t, errors.Is(err, ErrDestinationRequired))
}

func TestDeliverHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(5*time.Second, WithLogger(zerolog.Nop()))
	_, err := client.Deliver(ctx, signedRequest(t, srv.URL, []byte(`{}`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestDeliverTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := NewClient(time.Second,
		WithLogger(zerolog.Nop()),
		WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) { return nil, boom })),
	)

	_, err := client.Deliver(context.Background(), signedRequest(t, "http://127.0.0.1:1/hook", []byte(`{}`)))
	assert.True(t, errors.Is(err, boom))
}

func TestRequestHeadersOmitOptional(t *testing.T) {
	h := Request{Signature: "abc"}.Headers()

	assert.Equal(t, "sha1=abc", h.Get(signature.HeaderSHA1))
	assert.Empty(t, h.Get(signature.HeaderSHA256))
	assert.Empty(t, h.Get(HeaderEvent))
	assert.Empty(t, h.Get(HeaderDelivery))
}
