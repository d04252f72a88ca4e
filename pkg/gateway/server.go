package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"leoactivation/pkg/agent"
	"leoactivation/pkg/channels"
	"leoactivation/pkg/llm"
	"leoactivation/pkg/monitor"
	"leoactivation/pkg/utils"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

// ServerConfig HTTP 服務設定
type ServerConfig struct {
	Host         string
	Port         int
	SystemPrompt string
}

// Server exposes the agent over REST and WebSocket.
// REST 的 /api/chat 是無狀態單輪；WebSocket 每條連線保有自己的歷史。
type Server struct {
	config     ServerConfig
	router     *agent.AgentRouter
	activation *channels.Manager
	mon        monitor.Monitor
	httpServer *http.Server
}

// NewServer wires the agent router and the activation manager into an
// HTTP surface. The monitor is optional.
func NewServer(cfg ServerConfig, router *agent.AgentRouter, activation *channels.Manager, mon monitor.Monitor) *Server {
	return &Server{
		config:     cfg,
		router:     router,
		activation: activation,
		mon:        mon,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/test/zalo-direct", s.handleZaloDirect)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("✅ Gateway listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("❌ Gateway server error", "error", err)
		}
	}()

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

//----------------------------------------------------------------
// REST handlers
//----------------------------------------------------------------

// ChatRequest 是 /api/chat 的輸入
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ZaloTestRequest 是 /api/test/zalo-direct 的輸入
type ZaloTestRequest struct {
	SegmentName string         `json:"segment_name"`
	Message     string         `json:"message"`
	Kwargs      map[string]any `json:"kwargs"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	slog.Info("Incoming prompt", "prompt", req.Prompt)
	s.broadcast("USER", "api", req.Prompt)

	// 每個請求一個 debug 識別碼，raw response dump 會分目錄存放
	ctx := context.WithValue(r.Context(), llm.DebugDirContextKey, utils.GenerateID())

	conversation := s.buildConversation(req.Prompt)
	result := s.router.HandleMessage(ctx, conversation)

	s.broadcast("ASSISTANT", "api", result.Answer)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleZaloDirect(w http.ResponseWriter, r *http.Request) {
	var req ZaloTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SegmentName == "" {
		writeError(w, http.StatusBadRequest, "segment_name is required")
		return
	}

	// 直接打 Zalo channel，繞過 agent 路由，用於整合測試
	response := s.activation.Execute(r.Context(), "zalo_oa", req.SegmentName, req.Message, req.Kwargs)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "completed",
		"mode":             "direct_test",
		"channel_response": response,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"channels": s.activation.List(),
	})
}

// buildConversation 組出單輪請求的對話
func (s *Server) buildConversation(prompt string) []llm.Message {
	var conversation []llm.Message
	if s.config.SystemPrompt != "" {
		conversation = append(conversation, llm.NewSystemMessage(s.config.SystemPrompt))
	}
	return append(conversation, llm.NewUserMessage(prompt))
}

//----------------------------------------------------------------
// WebSocket
//----------------------------------------------------------------

// wsConn 序列化對單一 WebSocket 連線的寫入
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

type wsIncoming struct {
	Text string `json:"text"`
}

// handleWebSocket runs a conversational session. Each connection keeps
// its own history, so concurrent clients never see each other's turns.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	conn := &wsConn{Conn: rawConn}
	defer conn.Close()

	history := llm.NewChatHistory()
	if s.config.SystemPrompt != "" {
		history.EnsureSystemMessage(s.config.SystemPrompt)
	}

	clientID := r.RemoteAddr
	slog.Info("WS client connected", "client", clientID)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			slog.Info("WS client disconnected", "client", clientID)
			return
		}

		// JSON 格式優先，退回純文字以相容舊前端
		var incoming wsIncoming
		content := string(msgBytes)
		if err := json.Unmarshal(msgBytes, &incoming); err == nil && incoming.Text != "" {
			content = incoming.Text
		}
		if content == "" {
			continue
		}

		s.broadcast("USER", "ws", content)
		history.Add(llm.NewUserMessage(content))

		ctx := context.WithValue(r.Context(), llm.DebugDirContextKey, utils.GenerateID())
		result := s.router.HandleMessage(ctx, history.GetMessages())

		// 事件順序：tool_call* → tool_result* → answer
		for _, call := range result.Debug.Calls {
			conn.writeJSON(map[string]any{
				"type":      "tool_call",
				"name":      call.Name,
				"arguments": call.Arguments,
			})
		}
		for _, data := range result.Debug.Data {
			conn.writeJSON(map[string]any{
				"type":     "tool_result",
				"name":     data.Name,
				"response": data.Response,
			})
		}
		if err := conn.writeJSON(map[string]any{
			"type": "answer",
			"text": result.Answer,
		}); err != nil {
			slog.Error("WS write failed", "client", clientID, "error", err)
			return
		}

		history.Add(llm.NewAssistantMessage(result.Answer))
		s.broadcast("ASSISTANT", "ws", result.Answer)
	}
}

//----------------------------------------------------------------
// Helpers
//----------------------------------------------------------------

func (s *Server) broadcast(messageType, channelID, content string) {
	if s.mon == nil || content == "" {
		return
	}
	s.mon.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: messageType,
		ChannelID:   channelID,
		Content:     content,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
