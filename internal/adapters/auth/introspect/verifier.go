package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pawtrace-qr/internal/platform/httpclient"
	"pawtrace-qr/internal/ports/auth"
)

var (
	ErrNotConfigured = errors.New("introspection client not configured")
	ErrUnauthorized  = errors.New("token rejected")
	ErrUpstream      = errors.New("identity service error")
)

// Config del verifier contra el servicio de identidad de la plataforma
// (el backend principal de PawTrace, dueño de las cuentas).
type Config struct {
	BaseURL string
	APIKey  string

	// Opcional: header de la API key. Default "X-Api-Key".
	APIKeyHeader string

	Timeout time.Duration
}

// Verifier implementa auth.AuthVerifier introspectando el token contra
// POST {base}/v1/tokens/introspect. No se integra solo: se instancia desde
// main/router cuando hay credenciales configuradas.
type Verifier struct {
	http         *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	header := strings.TrimSpace(cfg.APIKeyHeader)
	if header == "" {
		header = "X-Api-Key"
	}
	c, err := httpclient.NewWithBaseURL(cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		http:         c,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: header,
	}, nil
}

// newWithClient existe para tests (transport inyectado).
func newWithClient(c *httpclient.Client, apiKey string) *Verifier {
	return &Verifier{http: c, apiKey: apiKey, apiKeyHeader: "X-Api-Key"}
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.http == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrUnauthorized
	}

	var out struct {
		Active bool   `json:"active"`
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Admin  bool   `json:"admin"`
	}

	err := v.http.DoJSON(ctx, http.MethodPost, "/v1/tokens/introspect",
		map[string]string{v.apiKeyHeader: v.apiKey},
		map[string]string{"token": token},
		&out)
	if err != nil {
		var he *httpclient.HTTPError
		if errors.As(err, &he) && (he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden) {
			return auth.Claims{}, ErrUnauthorized
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	out.UserID = strings.TrimSpace(out.UserID)
	if !out.Active || out.UserID == "" {
		return auth.Claims{}, ErrUnauthorized
	}

	return auth.Claims{
		UserID: out.UserID,
		Email:  strings.TrimSpace(out.Email),
		Admin:  out.Admin,
	}, nil
}
