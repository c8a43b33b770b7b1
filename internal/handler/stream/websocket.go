package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/service/relay"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
)

const writeWait = 10 * time.Second

// WebSocketHandler carries one chat exchange per connection: the client sends a
// chat request as its first message and receives the frames of the reply.
type WebSocketHandler struct {
	relay    *relay.Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(svc *relay.Service, allowOrigin func(origin string) bool) *WebSocketHandler {
	return &WebSocketHandler{
		relay: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Frame is one WebSocket message sent to the client.
type Frame struct {
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Requested string `json:"requested,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

// HandleWebSocket upgrades the connection and relays one exchange.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", logger.Err(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(relay.MaxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sink := &wsSink{conn: conn}

	// 读协程持有连接的读端：先交出请求，之后在客户端断开时取消上游调用
	requests := make(chan inbound, 1)
	go func() {
		defer cancel()
		var in inbound
		in.err = conn.ReadJSON(&in.req)
		requests <- in
		if in.err != nil {
			return
		}
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	in := <-requests
	if in.err != nil {
		sink.reject(apperror.InvalidPayload("malformed chat request: %v", in.err))
		return
	}

	stream, err := h.relay.Start(ctx, in.req)
	if err != nil {
		if ctx.Err() != nil {
			slog.InfoContext(r.Context(), "websocket client left before the first fragment", logger.Err(err))
			return
		}
		sink.reject(err)
		return
	}

	outcome, err := relay.Pump(ctx, stream, sink)
	if err != nil {
		slog.InfoContext(ctx, "websocket chat ended early", "outcome", outcome, logger.Err(err))
		return
	}
	sink.close(websocket.CloseNormalClosure, "")
}

type inbound struct {
	req relay.ChatRequest
	err error
}

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) write(frame Frame) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

func (s *wsSink) Fragment(text string) error {
	return s.write(Frame{Content: text})
}

func (s *wsSink) Fail(error) error {
	return s.write(Frame{Error: string(apperror.CodeUpstream)})
}

func (s *wsSink) Done() error {
	return s.write(Frame{Done: true})
}

func (s *wsSink) reject(err error) {
	appErr := apperror.As(err)
	_ = s.write(Frame{Error: string(appErr.Code), Detail: appErr.Detail, Requested: appErr.Requested})
	s.close(websocket.ClosePolicyViolation, string(appErr.Code))
}

func (s *wsSink) close(code int, text string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
