package channels

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"leoactivation/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

// ZaloConfig Zalo OA 通道設定
type ZaloConfig struct {
	APIURL     string `json:"api_url"`
	Token      string `json:"token"`
	MaxRetries int    `json:"max_retries"`
}

// ZaloOAChannel delivers messages through the Zalo Official Account API.
// 收件人取自 profile 的 zalo_user_id 屬性。
type ZaloOAChannel struct {
	config     ZaloConfig
	store      api.Store
	httpClient *http.Client
}

// NewZaloOAChannel validates credentials up front.
func NewZaloOAChannel(cfg ZaloConfig, deps Deps) (*ZaloOAChannel, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("zalo: api_url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("zalo: token is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	return &ZaloOAChannel{
		config:     cfg,
		store:      deps.Store,
		httpClient: &http.Client{Timeout: deps.HTTPTimeout},
	}, nil
}

// Key implements api.ActivationChannel
func (c *ZaloOAChannel) Key() string {
	return "zalo_oa"
}

// Send implements api.ActivationChannel
func (c *ZaloOAChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	profiles, err := c.store.ProfilesBySegment(ctx, segment)
	if err != nil {
		return nil, fmt.Errorf("zalo: load recipients: %w", err)
	}

	var userIDs []string
	for _, p := range profiles {
		if id, ok := p.RawAttributes["zalo_user_id"].(string); ok && id != "" {
			userIDs = append(userIDs, id)
		}
	}
	if len(userIDs) == 0 {
		return map[string]any{
			"status":  "warning",
			"channel": "zalo_oa",
			"message": fmt.Sprintf("No Zalo recipients found in '%s'", segment),
		}, nil
	}

	sent, failed := 0, 0
	for _, userID := range userIDs {
		if err := c.sendOne(ctx, userID, message); err != nil {
			slog.Error("[Zalo] Delivery failed", "user_id", userID, "error", err)
			failed++
			continue
		}
		sent++
	}

	slog.Info("[Zalo] Segment delivered", "segment", segment, "sent", sent, "failed", failed)
	return map[string]any{
		"status":  "success",
		"channel": "zalo_oa",
		"stats":   map[string]any{"sent": sent, "failed": failed},
	}, nil
}

// sendOne 發送單則訊息，暫時性失敗會以線性退避重試
func (c *ZaloOAChannel) sendOne(ctx context.Context, userID, message string) error {
	payload := map[string]any{
		"recipient": map[string]string{"user_id": userID},
		"message":   map[string]string{"text": message},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("access_token", c.config.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("zalo returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("zalo returned status %d", resp.StatusCode)
		}
		return nil
	}

	return fmt.Errorf("zalo: all %d attempts failed: %w", c.config.MaxRetries, lastErr)
}

//----------------------------------------------------------------

type zaloFactory struct{}

func (f *zaloFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg ZaloConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("zalo: invalid config: %w", err)
	}
	return NewZaloOAChannel(cfg, deps)
}

func init() {
	RegisterChannel("zalo_oa", &zaloFactory{})
}
