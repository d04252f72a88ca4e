package channels

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"leoactivation/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

// FacebookConfig Facebook Page 通道設定
type FacebookConfig struct {
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token"`
	BaseURL     string `json:"base_url"` // 預設 Graph API，測試可覆寫
}

// FacebookPageChannel publishes the campaign message as a post on the
// configured fan page. Segment targeting happens on the page audience
// side, the segment name is only recorded in the post for tracking.
type FacebookPageChannel struct {
	config     FacebookConfig
	httpClient *http.Client
}

// NewFacebookPageChannel validates credentials up front.
func NewFacebookPageChannel(cfg FacebookConfig, deps Deps) (*FacebookPageChannel, error) {
	if cfg.PageID == "" {
		return nil, fmt.Errorf("facebook: page_id is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("facebook: access_token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}

	return &FacebookPageChannel{
		config:     cfg,
		httpClient: &http.Client{Timeout: deps.HTTPTimeout},
	}, nil
}

// Key implements api.ActivationChannel
func (c *FacebookPageChannel) Key() string {
	return "facebook_page"
}

// Send implements api.ActivationChannel
func (c *FacebookPageChannel) Send(ctx context.Context, segment, message string, opts map[string]any) (map[string]any, error) {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", c.config.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/feed", strings.TrimRight(c.config.BaseURL, "/"), c.config.PageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facebook: post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("facebook: graph api returned status %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	slog.Info("[Facebook] Page post published", "page_id", c.config.PageID, "post_id", body.ID, "segment", segment)
	return map[string]any{
		"status":  "success",
		"channel": "facebook_page",
		"post_id": body.ID,
	}, nil
}

//----------------------------------------------------------------

type facebookFactory struct{}

func (f *facebookFactory) Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error) {
	var cfg FacebookConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("facebook: invalid config: %w", err)
	}
	return NewFacebookPageChannel(cfg, deps)
}

func init() {
	RegisterChannel("facebook_page", &facebookFactory{})
}
