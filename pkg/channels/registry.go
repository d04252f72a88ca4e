package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"leoactivation/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. This allows the system to support new platforms
// (e.g., Line, Viber) without modifying the activation manager.
type ChannelFactory interface {
	// Create instantiates a concrete ActivationChannel implementation
	// using the provided configuration and shared system resources.
	Create(rawConfig jsoniter.RawMessage, deps Deps) (api.ActivationChannel, error)
}

// Deps 打包各 Channel 共用的系統資源
type Deps struct {
	Store       api.Store     // 收件人查詢
	HTTPTimeout time.Duration // 對外 HTTP 呼叫的逾時
}

// channelRegistry is an internal global map storing the mapping between
// canonical channel keys (e.g., "zalo_oa") and their factory implementations.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by canonical key.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}

//----------------------------------------------------------------
// Alias normalization
//----------------------------------------------------------------

// channelAliases 支援常見縮寫與變體的別名表
var channelAliases = map[string]string{
	// Zalo variants
	"zalo":      "zalo_oa",
	"zalo_oa":   "zalo_oa",
	"zalo_push": "zalo_oa",
	"zalooa":    "zalo_oa",

	// Facebook variants
	"facebook":      "facebook_page",
	"facebook_page": "facebook_page",
	"facebookpage":  "facebook_page",
	"facebook_push": "facebook_page",
	"fb":            "facebook_page",
	"fb_page":       "facebook_page",
	"fbpage":        "facebook_page",

	// Email variants
	"email":         "email",
	"email_channel": "email",

	// Push notification variants
	"mobile_push":         "mobile_push",
	"mobile_notification": "mobile_push",
	"web_push":            "web_push",
	"web_notification":    "web_push",
	"webpush":             "web_push",

	// Telegram variants
	"telegram":     "telegram",
	"tg":           "telegram",
	"telegram_bot": "telegram",
}

var nonAlphanumRegex = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeKey normalizes incoming channel names to canonical keys.
// Handles common variants with spaces, hyphens, and compact forms
// (e.g. "Zalo OA", "zalo-oa", "ZaloOA"). Returns either a canonical
// channel key or the lowercased raw string for further heuristics.
func NormalizeKey(key string) string {
	raw := strings.ToLower(strings.TrimSpace(key))
	if raw == "" {
		return ""
	}

	// Direct alias mapping if present
	if mapped, ok := channelAliases[raw]; ok {
		return mapped
	}

	// Try common variants
	variants := []string{
		strings.ReplaceAll(raw, " ", "_"),
		strings.ReplaceAll(raw, " ", ""),
		strings.ReplaceAll(raw, "-", "_"),
		strings.ReplaceAll(raw, "-", ""),
		strings.ReplaceAll(strings.ReplaceAll(raw, " ", "_"), "-", "_"),
	}
	for _, v := range variants {
		if mapped, ok := channelAliases[v]; ok {
			return mapped
		}
	}

	// Fallback: strip non-alphanumeric to compact form ("zalooa", "facebookpage")
	compact := nonAlphanumRegex.ReplaceAllString(raw, "")
	if mapped, ok := channelAliases[compact]; ok {
		return mapped
	}

	return raw
}

//----------------------------------------------------------------
// Manager - Factory + dispatcher for activation channels
//----------------------------------------------------------------

// Manager 保管已建立的 Channel 實例並負責正規化與分發。
// Execute 吸收所有 Channel 錯誤，統一回報 status map。
type Manager struct {
	mu       sync.RWMutex
	channels map[string]api.ActivationChannel
}

// NewManager 建立空的 Manager
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]api.ActivationChannel),
	}
}

// Register adds or overrides a channel instance by its canonical key.
// Safe for tests and runtime extensions.
func (m *Manager) Register(ch api.ActivationChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(ch.Key()))
	m.channels[key] = ch
	slog.Debug("Registered activation channel", "key", key)
}

// List returns the canonical keys of all registered channels.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.channels))
	for key := range m.channels {
		keys = append(keys, key)
	}
	return keys
}

// Resolve maps a raw channel name to a registered channel.
// 正規化失敗時還有兩層啟發式：字尾剝除與 compact 比對。
func (m *Manager) Resolve(key string) (api.ActivationChannel, string, bool) {
	raw := strings.ToLower(strings.TrimSpace(key))
	resolved := NormalizeKey(raw)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if ch, ok := m.channels[resolved]; ok {
		return ch, resolved, true
	}

	// Heuristic suffix stripping ("sms_push" -> "sms")
	for _, suffix := range []string{"_push", "-push", " push", "_page", "-page", " page"} {
		if !strings.HasSuffix(raw, suffix) {
			continue
		}
		candidate := NormalizeKey(raw[:len(raw)-len(suffix)])
		if ch, ok := m.channels[candidate]; ok {
			return ch, candidate, true
		}
	}

	return nil, resolved, false
}

// Execute resolves a channel and delivers the message.
// Channel 的 error 與 panic 都被吸收成 status error map，永不上拋。
func (m *Manager) Execute(ctx context.Context, channelKey, segment, message string, opts map[string]any) (result map[string]any) {
	ch, resolved, ok := m.Resolve(channelKey)
	if !ok {
		return map[string]any{
			"status":    "error",
			"message":   fmt.Sprintf("Unsupported channel: %s", channelKey),
			"available": m.List(),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Channel execution panicked", "channel", resolved, "error", r)
			result = map[string]any{
				"status":  "error",
				"channel": resolved,
				"message": fmt.Sprintf("internal channel panic: %v", r),
			}
		}
	}()

	slog.Info("📣 Activating channel", "channel", resolved, "segment", segment)

	res, err := ch.Send(ctx, segment, message, opts)
	if err != nil {
		slog.Error("Channel execution failed", "channel", resolved, "error", err)
		return map[string]any{
			"status":  "error",
			"channel": resolved,
			"message": err.Error(),
		}
	}
	if res == nil {
		res = map[string]any{"status": "success", "channel": resolved}
	}
	return res
}
