package introspect

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"pawtrace-qr/internal/platform/httpclient"
)

type stubTransport struct {
	status int
	body   string

	gotAPIKey string
	gotPath   string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.gotAPIKey = req.Header.Get("X-Api-Key")
	s.gotPath = req.URL.Path
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func newTestVerifier(tr *stubTransport) *Verifier {
	c := httpclient.NewWithTransport(time.Second, tr)
	c.BaseURL = "http://identity.test"
	return newWithClient(c, "secret")
}

func TestVerify_ActiveToken(t *testing.T) {
	tr := &stubTransport{status: 200, body: `{"active":true,"user_id":"u-1","email":"a@b.c","admin":true}`}
	v := newTestVerifier(tr)

	claims, err := v.Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "a@b.c" || !claims.Admin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if tr.gotAPIKey != "secret" {
		t.Fatalf("api key header not sent, got %q", tr.gotAPIKey)
	}
	if tr.gotPath != "/v1/tokens/introspect" {
		t.Fatalf("unexpected path %q", tr.gotPath)
	}
}

func TestVerify_InactiveTokenRejected(t *testing.T) {
	tr := &stubTransport{status: 200, body: `{"active":false,"user_id":"u-1"}`}
	v := newTestVerifier(tr)

	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerify_UpstreamStatuses(t *testing.T) {
	v := newTestVerifier(&stubTransport{status: 401, body: `{}`})
	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on 401, got %v", err)
	}

	v = newTestVerifier(&stubTransport{status: 500, body: `boom`})
	if _, err := v.Verify(context.Background(), "tok"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream on 500, got %v", err)
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	v := newTestVerifier(&stubTransport{status: 200, body: `{}`})
	if _, err := v.Verify(context.Background(), "   "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for blank token, got %v", err)
	}
}

func TestNewVerifier_RequiresConfig(t *testing.T) {
	if _, err := NewVerifier(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewVerifier(Config{BaseURL: "http://id.test", APIKey: "k"}); err != nil {
		t.Fatalf("expected configured verifier, got %v", err)
	}
}
