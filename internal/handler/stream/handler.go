package stream

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/service/relay"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
	"github.com/zhouzirui/iaengine/backend/pkg/utils"
)

// Handler relays chat exchanges to the upstream model as Server-Sent Events.
type Handler struct {
	relay *relay.Service
	ws    *WebSocketHandler
}

// New creates a stream handler. allowOrigin gates WebSocket upgrades.
func New(svc *relay.Service, allowOrigin func(origin string) bool) *Handler {
	return &Handler{
		relay: svc,
		ws:    NewWebSocketHandler(svc, allowOrigin),
	}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Get("/chat/ws", h.ws.HandleWebSocket)
}

// StreamResponse is the payload of one SSE data frame.
type StreamResponse struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleChat validates the request, opens the upstream stream and forwards its fragments.
// Failures before the first fragment are plain JSON errors; after that the stream carries them.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, relay.MaxBodyBytes)
	req, err := relay.DecodeRequest(r.Body)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	ctx := r.Context()
	stream, err := h.relay.Start(ctx, req)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	outcome, err := relay.Pump(ctx, stream, &sseSink{w: w, flusher: flusher})
	if err != nil {
		slog.InfoContext(ctx, "chat stream ended early", "outcome", outcome, "model", stream.Model.UpstreamID, logger.Err(err))
	}
}

type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Fragment(text string) error {
	return utils.SendSSEChunk(s.w, s.flusher, StreamResponse{Content: text})
}

func (s *sseSink) Fail(error) error {
	return utils.SendSSEChunk(s.w, s.flusher, StreamResponse{Error: string(apperror.CodeUpstream)})
}

func (s *sseSink) Done() error {
	return utils.SendSSEDone(s.w, s.flusher)
}
