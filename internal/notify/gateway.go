package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Gateway delivers outbound email/SMS. Callers treat delivery as
// fire-and-forget: failures are logged or collected, never escalated to the
// primary operation's result.
type Gateway interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
	SendSMS(ctx context.Context, to, message string) error
}

// HTTPGateway posts JSON to a notification provider endpoint.
type HTTPGateway struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPGateway(endpoint, apiKey string) *HTTPGateway {
	return &HTTPGateway{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (g *HTTPGateway) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	return g.post(ctx, "/v1/email", map[string]string{"to": to, "subject": subject, "html": htmlBody})
}

func (g *HTTPGateway) SendSMS(ctx context.Context, to, message string) error {
	return g.post(ctx, "/v1/sms", map[string]string{"to": to, "message": message})
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload map[string]string) error {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification provider status %d", resp.StatusCode)
	}
	return nil
}

// LogGateway logs instead of delivering; used when no provider is configured.
type LogGateway struct {
	Logger *slog.Logger
}

func (g *LogGateway) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	g.logger().Info("notification email", "to", to, "subject", subject)
	return nil
}

func (g *LogGateway) SendSMS(ctx context.Context, to, message string) error {
	g.logger().Info("notification sms", "to", to, "message", message)
	return nil
}

func (g *LogGateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
