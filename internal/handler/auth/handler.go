package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/iaengine/backend/internal/apperror"
	"github.com/zhouzirui/iaengine/backend/internal/metrics"
	"github.com/zhouzirui/iaengine/backend/internal/model/chat"
	"github.com/zhouzirui/iaengine/backend/internal/service/session"
	"github.com/zhouzirui/iaengine/backend/pkg/logger"
	"github.com/zhouzirui/iaengine/backend/pkg/utils"
)

// Handler exposes login, logout and session inspection.
type Handler struct {
	sessions *session.Store
	cookies  *Cookies
	password string
}

// New creates an auth handler checking logins against password.
func New(sessions *session.Store, cookies *Cookies, password string) *Handler {
	return &Handler{
		sessions: sessions,
		cookies:  cookies,
		password: password,
	}
}

// RegisterLoginRoutes mounts the login endpoints. They are split out so the
// router can rate limit them by client address.
func (h *Handler) RegisterLoginRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
	r.Post("/login", h.login)
}

// RegisterRoutes mounts logout and session inspection.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.logout)
	r.Get("/session", h.session)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	// 解析失败与缺少密码同样处理
	_ = json.NewDecoder(r.Body).Decode(&req)

	password := strings.TrimSpace(req.Password)
	if password == "" {
		metrics.Logins.WithLabelValues("missing_password").Inc()
		utils.RespondAppError(w, apperror.MissingPassword())
		return
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) != 1 {
		metrics.Logins.WithLabelValues("rejected").Inc()
		slog.WarnContext(r.Context(), "login rejected", "remote", r.RemoteAddr)
		utils.RespondAppError(w, apperror.InvalidCredentials())
		return
	}

	if old, ok := h.cookies.Token(r); ok {
		h.sessions.Destroy(old)
	}

	sess := h.sessions.Create()
	if err := h.cookies.Set(w, sess.ID); err != nil {
		h.sessions.Destroy(sess.ID)
		slog.ErrorContext(r.Context(), "failed to encode session cookie", logger.Err(err))
		utils.RespondAppError(w, err)
		return
	}

	metrics.Logins.WithLabelValues("accepted").Inc()
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.cookies.Token(r); ok {
		h.sessions.Destroy(token)
	}
	h.cookies.Clear(w)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	_, ok := h.current(r)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"authenticated": ok})
}

func (h *Handler) current(r *http.Request) (chat.Session, bool) {
	token, ok := h.cookies.Token(r)
	if !ok {
		return chat.Session{}, false
	}
	return h.sessions.Get(token)
}

type sessionKey struct{}

// RequireSession rejects requests without a live session with 401 unauthorized.
// The session is available to later handlers through FromContext.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.current(r)
		if !ok {
			utils.RespondAppError(w, apperror.Unauthorized())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

// FromContext returns the session attached by RequireSession.
func FromContext(ctx context.Context) (chat.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(chat.Session)
	return sess, ok
}

// SessionKey buckets rate limits by session, falling back to the client address.
func SessionKey(r *http.Request) (string, error) {
	if sess, ok := FromContext(r.Context()); ok {
		return "session:" + sess.ID, nil
	}
	return "ip:" + r.RemoteAddr, nil
}
