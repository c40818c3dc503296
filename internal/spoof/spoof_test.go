package spoof

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/styxit/spoof/internal/delivery"
	"github.com/styxit/spoof/internal/signature"
	"github.com/styxit/spoof/internal/templates"
)

// Signatures of testdata/pr-merge.golden.json with secret "testsecret".
const (
	goldenSHA1   = "e56475c51d55d7ab3462837b54601aa1b3828321"
	goldenSHA256 = "8e9dfc8aaba27fed0d0a35a916f10908ce2e3215efe5fe62ab265570bf7364b0"
)

type countingSigner struct {
	inner *signature.Signer
	calls int
}

func (c *countingSigner) Sign(payload []byte) string {
	c.calls++
	return c.inner.Sign(payload)
}

func (c *countingSigner) Sign256(payload []byte) string {
	c.calls++
	return c.inner.Sign256(payload)
}

type recordingDeliverer struct {
	requests []delivery.Request
}

func (r *recordingDeliverer) Deliver(ctx context.Context, req delivery.Request) (*delivery.Response, error) {
	r.requests = append(r.requests, req)
	return &delivery.Response{StatusCode: http.StatusAccepted}, nil
}

func newTestService(t *testing.T, deliverer Deliverer, destination string) (*Service, *countingSigner) {
	t.Helper()
	tmpls, err := templates.LoadBuiltinTemplates()
	require.NoError(t, err)

	inner, err := signature.New([]byte("testsecret"))
	require.NoError(t, err)
	signer := &countingSigner{inner: inner}

	svc := NewService(templates.NewRegistry(tmpls...), signer, deliverer, destination,
		WithIDGenerator(func() string { return "delivery-1" }),
		WithLogger(zerolog.Nop()),
	)
	return svc, signer
}

func TestMergeVariables(t *testing.T) {
	vars, err := MergeVariables("styxit/deployments", "feature-x", "main")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"repoName":     "deployments",
		"repoOwner":    "styxit",
		"repoFullName": "styxit/deployments",
		"from":         "feature-x",
		"target":       "main",
	}, vars)

	invalid := []string{"", "deployments", "/deployments", "styxit/", "a/b/c", "   "}
	for _, repo := range invalid {
		t.Run(repo, func(t *testing.T) {
			_, err := MergeVariables(repo, "feature-x", "main")
			assert.True(t, errors.Is(err, ErrInvalidRepository), "got %v", err)
		})
	}
}

func TestPrepareMergeGolden(t *testing.T) {
	svc, _ := newTestService(t, &recordingDeliverer{}, "http://example.invalid")

	vars, err := MergeVariables("styxit/deployments", "feature-x", "main")
	require.NoError(t, err)

	event, err := svc.Prepare(MergeTemplate, vars)
	require.NoError(t, err)

	golden, err := os.ReadFile("../templates/testdata/pr-merge.golden.json")
	require.NoError(t, err)

	assert.Equal(t, string(golden), string(event.Payload))
	assert.Equal(t, goldenSHA1, event.Signature)
	assert.Equal(t, goldenSHA256, event.Signature256)
	assert.Equal(t, "merge_pull_request", event.Name)
	assert.Equal(t, "pr-merge", event.Template)
	assert.Equal(t, "delivery-1", event.DeliveryID)
}

func TestPrepareMissingVariableSkipsSigner(t *testing.T) {
	svc, signer := newTestService(t, &recordingDeliverer{}, "http://example.invalid")

	vars, err := MergeVariables("styxit/deployments", "feature-x", "main")
	require.NoError(t, err)
	delete(vars, "from")

	event, err := svc.Prepare(MergeTemplate, vars)
	require.Error(t, err)
	assert.Nil(t, event)
	assert.Zero(t, signer.calls)

	var missing *templates.MissingVariableError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"from"}, missing.Names)
}

func TestPrepareUnknownTemplate(t *testing.T) {
	svc, signer := newTestService(t, &recordingDeliverer{}, "http://example.invalid")

	event, err := svc.Prepare("push", map[string]string{})
	assert.Nil(t, event)
	assert.True(t, errors.Is(err, templates.ErrTemplateNotFound))
	assert.Zero(t, signer.calls)
}

func TestPrepareEventNameFallsBackToTemplateName(t *testing.T) {
	inner, err := signature.New([]byte("k"))
	require.NoError(t, err)
	registry := templates.NewRegistry(&templates.Template{Name: "ping", Body: `{"zen": "{{.zen}}"}`})

	svc := NewService(registry, inner, &recordingDeliverer{}, "", WithLogger(zerolog.Nop()))
	event, err := svc.Prepare("ping", map[string]string{"zen": "keep it logically awesome"})
	require.NoError(t, err)
	assert.Equal(t, "ping", event.Name)
	assert.NotEmpty(t, event.DeliveryID)
}

func TestDeliverUsesPreparedBytes(t *testing.T) {
	rec := &recordingDeliverer{}
	svc, _ := newTestService(t, rec, "https://deploy.example.com/hook")

	vars, err := MergeVariables("styxit/deployments", `feat/"quoted"\x`, "main")
	require.NoError(t, err)
	event, err := svc.Prepare(MergeTemplate, vars)
	require.NoError(t, err)

	resp, err := svc.Deliver(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	assert.Equal(t, "https://deploy.example.com/hook", req.URL)
	assert.Equal(t, event.Payload, req.Payload)
	assert.Equal(t, event.Signature, req.Signature)
	assert.NoError(t, signature.Verify([]byte("testsecret"), req.Payload, signature.Header(req.Signature)))

	_, err = svc.Deliver(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrEventRequired))
}

func TestEndToEndRoundTrip(t *testing.T) {
	var (
		body   []byte
		header string
		event  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		header = r.Header.Get(signature.HeaderSHA1)
		event = r.Header.Get(delivery.HeaderEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := delivery.NewClient(time.Second, delivery.WithLogger(zerolog.Nop()))
	svc, _ := newTestService(t, client, srv.URL)

	vars, err := MergeVariables("styxit/deployments", "feature-x", "main")
	require.NoError(t, err)
	prepared, err := svc.Prepare(MergeTemplate, vars)
	require.NoError(t, err)

	resp, err := svc.Deliver(context.Background(), prepared)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	assert.Equal(t, "sha1="+goldenSHA1, header)
	assert.Equal(t, "merge_pull_request", event)
	assert.NoError(t, signature.Verify([]byte("testsecret"), body, header))
}
