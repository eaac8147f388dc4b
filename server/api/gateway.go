package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Gateway proxies read-only calls to the OpenClaw gateway.
type Gateway struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewGateway returns a proxy for baseURL. The gateway listens on the
// tailnet with a self-signed certificate, so verification is off.
func NewGateway(baseURL, token string, logger *slog.Logger) *Gateway {
	return &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		Logger: logger,
	}
}

func (g *Gateway) get(ctx context.Context, path string, basic bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case basic:
		req.SetBasicAuth("admin", g.Token)
	case g.Token != "":
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("gateway returned invalid JSON")
	}
	return body, nil
}

// Fetch returns the gateway's JSON for path using bearer auth, retrying with
// basic auth when fallback is set. Any failure yields an empty array.
func (g *Gateway) Fetch(ctx context.Context, path string, fallback bool) json.RawMessage {
	attempts := []bool{false}
	if fallback {
		attempts = append(attempts, true)
	}
	for _, basic := range attempts {
		body, err := g.get(ctx, path, basic)
		if err == nil {
			return body
		}
		if g.Logger != nil {
			g.Logger.Debug("gateway fetch failed",
				slog.String("path", path), slog.Bool("basic", basic), slog.Any("err", err))
		}
	}
	return json.RawMessage("[]")
}

func (h *Handlers) gatewaySessions(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/api/sessions", true)
}

func (h *Handlers) gatewayAgents(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, "/api/agents", false)
}

func (h *Handlers) proxy(w http.ResponseWriter, r *http.Request, path string, fallback bool) {
	if h.Gateway == nil || h.Gateway.BaseURL == "" {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, h.Gateway.Fetch(r.Context(), path, fallback))
}
