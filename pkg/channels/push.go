package channels

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"leoactivation/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

//----------------------------------------------------------------
// Mobile push
//----------------------------------------------------------------

// MobilePushConfig 行動推播設定
type MobilePushConfig struct {
	AppID string `json:"app_id"`
}

// MobilePushChannel queues a mobile push campaign for the segment.
// TODO: wire to the FCM delivery worker once the device-token sync
// job lands; until then this records the request and reports queued.
type MobilePushChannel struct {
	config MobilePushConfig
	store  api.Store
}

func NewMobilePushChannel(cfg MobilePushConfig, deps Deps) (*MobilePushChannel, error) {
	return &MobilePushChannel{config: cfg, store: deps.Store}, nil
}

// Key implements api.ActivationChannel
func (c *MobilePushChannel) Key() string {
	return "mobile_push"
}

// Send implements api.ActivationChannel
func (c *MobilePushChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	count, err := c.store.CountProfiles(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("mobile_push: count recipients: %w", err)
	}

	slog.Info("[MobilePush] Campaign queued", "segment", segment, "audience", count)
	return map[string]any{
		"status":   "success",
		"channel":  "mobile_push",
		"queued":   true,
		"audience": count,
	}, nil
}

type mobilePushFactory struct{}

func (f *mobilePushFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg MobilePushConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("mobile_push: invalid config: %w", err)
	}
	return NewMobilePushChannel(cfg, deps)
}

//----------------------------------------------------------------
// Web push
//----------------------------------------------------------------

// WebPushConfig 網頁推播設定，訊息經由 webhook 轉送給推播服務
type WebPushConfig struct {
	WebhookURL string `json:"webhook_url"`
	AuthToken  string `json:"auth_token"`
}

// WebPushChannel delivers browser notifications through a push relay.
// 收件人取自 profile 的 fcm_token 屬性。
type WebPushChannel struct {
	config     WebPushConfig
	store      api.Store
	httpClient *http.Client
}

func NewWebPushChannel(cfg WebPushConfig, deps Deps) (*WebPushChannel, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("web_push: webhook_url is required")
	}
	return &WebPushChannel{
		config:     cfg,
		store:      deps.Store,
		httpClient: &http.Client{Timeout: deps.HTTPTimeout},
	}, nil
}

// Key implements api.ActivationChannel
func (c *WebPushChannel) Key() string {
	return "web_push"
}

// Send implements api.ActivationChannel
func (c *WebPushChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	profiles, err := c.store.ProfilesBySegment(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("web_push: load recipients: %w", err)
	}

	var tokens []string
	for _, p := range profiles {
		if tok, ok := p.RawAttributes["fcm_token"].(string); ok && tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return map[string]any{
			"status":  "warning",
			"channel": "web_push",
			"message": fmt.Sprintf("No push subscribers found in '%s'", segment),
		}, nil
	}

	title := "Notification"
	if t, ok := opts["title"].(string); ok && t != "" {
		title = t
	}

	sent, failed := 0, 0
	for _, token := range tokens {
		if err := c.relay(ctx, token, title, message); err != nil {
			slog.Error("[WebPush] Delivery failed", "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.Info("[WebPush] Segment delivered", "segment", segment, "sent", sent, "failed", failed)
	return map[string]any{
		"status":  "success",
		"channel": "web_push",
		"stats":   map[string]any{"sent": sent, "failed": failed},
	}, nil
}

func (c *WebPushChannel) relay(ctx context.Context, token, title, body string) error {
	payload := map[string]any{
		"token": token,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push relay returned status %d", resp.StatusCode)
	}
	return nil
}

type webPushFactory struct{}

func (f *webPushFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg WebPushConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("web_push: invalid config: %w", err)
	}
	return NewWebPushChannel(cfg, deps)
}

func init() {
	RegisterChannel("mobile_push", &mobilePushFactory{})
	RegisterChannel("web_push", &webPushFactory{})
}
