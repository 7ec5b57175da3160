package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeventeLantos/group-campaigns/internal/model"
)

const (
	sendDelayMs  = 1200
	sendPresence = "composing"
)

// GatewayClient talks to an Evolution-style messaging gateway.
type GatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type instancePayload struct {
	InstanceName     string `json:"instanceName"`
	Name             string `json:"name"`
	State            string `json:"state"`
	ConnectionStatus string `json:"connectionStatus"`
	Owner            string `json:"owner"`
	OwnerJid         string `json:"ownerJid"`
}

type instanceEntry struct {
	instancePayload
	Instance *instancePayload `json:"instance"`
}

func (e instanceEntry) endpoint() model.Endpoint {
	p := e.instancePayload
	if e.Instance != nil {
		p = *e.Instance
	}
	return model.Endpoint{
		Name:  firstNonEmpty(p.InstanceName, p.Name, e.InstanceName, e.Name),
		State: firstNonEmpty(p.State, p.ConnectionStatus, e.State, e.ConnectionStatus),
		Owner: ownerNumber(firstNonEmpty(p.Owner, p.OwnerJid, e.Owner, e.OwnerJid)),
	}
}

// ListEndpoints accepts both the nested {"instance": {...}} shape and the
// flat one.
func (c *GatewayClient) ListEndpoints(ctx context.Context) ([]model.Endpoint, error) {
	var entries []instanceEntry
	if err := c.do(ctx, "list_endpoints", http.MethodGet, "/instance/fetchInstances", nil, &entries); err != nil {
		return nil, err
	}

	out := make([]model.Endpoint, 0, len(entries))
	for _, e := range entries {
		ep := e.endpoint()
		if ep.Name == "" {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

type groupPayload struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

func (c *GatewayClient) ListGroups(ctx context.Context, endpoint string) ([]model.Group, error) {
	var groups []groupPayload
	path := "/group/fetchAllGroups/" + url.PathEscape(endpoint) + "?getParticipants=false"
	if err := c.do(ctx, "list_groups", http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}

	out := make([]model.Group, 0, len(groups))
	for _, g := range groups {
		if g.ID == "" {
			continue
		}
		name := firstNonEmpty(g.Subject, g.Name)
		if name == "" {
			name, _, _ = strings.Cut(g.ID, "@")
		}
		out = append(out, model.Group{ID: g.ID, Name: name})
	}
	return out, nil
}

type sendOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview *bool  `json:"linkPreview,omitempty"`
}

type sendTextRequest struct {
	Number  string      `json:"number"`
	Text    string      `json:"text"`
	Options sendOptions `json:"options"`
}

type sendMediaRequest struct {
	Number    string      `json:"number"`
	MediaType string      `json:"mediatype"`
	Media     string      `json:"media"`
	Caption   string      `json:"caption"`
	Options   sendOptions `json:"options"`
}

func (c *GatewayClient) SendText(ctx context.Context, endpoint, to, text string) error {
	noPreview := false
	body := sendTextRequest{
		Number:  to,
		Text:    text,
		Options: sendOptions{Delay: sendDelayMs, Presence: sendPresence, LinkPreview: &noPreview},
	}
	return c.do(ctx, "send_text", http.MethodPost, "/message/sendText/"+url.PathEscape(endpoint), body, nil)
}

func (c *GatewayClient) SendMedia(ctx context.Context, endpoint, to string, kind model.MediaKind, mediaURL, caption string) error {
	body := sendMediaRequest{
		Number:    to,
		MediaType: string(kind),
		Media:     mediaURL,
		Caption:   caption,
		Options:   sendOptions{Delay: sendDelayMs, Presence: sendPresence},
	}
	return c.do(ctx, "send_media", http.MethodPost, "/message/sendMedia/"+url.PathEscape(endpoint), body, nil)
}

func (c *GatewayClient) do(ctx context.Context, op, method, path string, in, out any) error {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(op))
	defer timer.ObserveDuration()

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		gatewayRequestsCounter.WithLabelValues(op, "transport_error").Inc()
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gatewayRequestsCounter.WithLabelValues(op, "http_error").Inc()
		c.logger.Debug("gateway request failed", "operation", op, "status", resp.StatusCode, "body", string(body))
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	gatewayRequestsCounter.WithLabelValues(op, "ok").Inc()

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	return nil
}

// StatusError is returned for non-2xx gateway responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// errorMessage extracts the gateway's "message" field, which may be a string
// or a list of strings, and falls back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Message  json.RawMessage `json:"message"`
		Error    string          `json:"error"`
		Response *struct {
			Message json.RawMessage `json:"message"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := rawMessage(payload.Message); msg != "" {
			return msg
		}
		if payload.Response != nil {
			if msg := rawMessage(payload.Response.Message); msg != "" {
				return msg
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

// ownerNumber strips the "@s.whatsapp.net" style suffix from an owner jid.
func ownerNumber(owner string) string {
	number, _, _ := strings.Cut(owner, "@")
	return number
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
