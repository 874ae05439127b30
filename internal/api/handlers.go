package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/xaenox/campus-chat/internal/assistant"
	"github.com/xaenox/campus-chat/internal/auth"
	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/ratelimit"
	"go.uber.org/zap"
)

// defaultRequestTimeout bounds one chat request end to end when no
// timeout is configured.
const defaultRequestTimeout = 60 * time.Second

type Handler struct {
	assistant *assistant.Assistant
	sessions  *auth.Sessions
	limits    ratelimit.Store
	quotas    map[models.UserType]int
	timeout   time.Duration
	logger    *zap.Logger
}

func NewHandler(a *assistant.Assistant, sessions *auth.Sessions, limits ratelimit.Store, quotas map[models.UserType]int, timeout time.Duration, logger *zap.Logger) *Handler {
	if quotas == nil {
		quotas = ratelimit.DailyQuota
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{
		assistant: a,
		sessions:  sessions,
		limits:    limits,
		quotas:    quotas,
		timeout:   timeout,
		logger:    logger,
	}
}

// chatRequest carries either a fresh message or, for tool-approval
// continuations, the full resubmitted history. Exactly one is set.
type chatRequest struct {
	Message  *models.Message  `json:"message,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
}

func (h *Handler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	token, session, err := h.sessions.Issue(r.Context())
	if err != nil {
		h.logger.Error("Failed to issue session", zap.Error(err))
		writeError(w, &APIError{Code: CodeOffline, Message: "Failed to create session"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(session)
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &APIError{Code: CodeBadRequest, Message: "Invalid request body"})
		return
	}
	if (req.Message == nil) == (len(req.Messages) == 0) {
		writeError(w, &APIError{Code: CodeBadRequest, Message: "Provide either message or messages"})
		return
	}

	session := h.resolveSession(r)
	if session == nil {
		writeError(w, &APIError{Code: CodeUnauthorized, Message: "No valid session"})
		return
	}

	quota, known := h.quotas[session.Type]
	if !known {
		writeError(w, &APIError{Code: CodeUnauthorized, Message: "Unknown user type"})
		return
	}
	count, err := h.limits.MessageCount(r.Context(), session.UserID, ratelimit.Window)
	if err != nil {
		h.logger.Error("Failed to check message count",
			zap.Error(err),
			zap.String("user_id", session.UserID))
		writeError(w, &APIError{Code: CodeOffline, Message: "Failed to check quota"})
		return
	}
	if count >= quota {
		writeError(w, &APIError{Code: CodeRateLimit, Message: "Daily message limit reached"})
		return
	}

	// Only a fresh user message spends quota; an approval continuation
	// resubmits history without adding one.
	if req.Message != nil {
		if err := h.limits.Record(r.Context(), session.UserID); err != nil {
			h.logger.Warn("Failed to record message",
				zap.Error(err),
				zap.String("user_id", session.UserID))
		}
	}

	conv := models.Conversation(req.Messages)
	if req.Message != nil {
		conv = models.Conversation{*req.Message}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, &APIError{Code: CodeOffline, Message: "Streaming unsupported"})
		return
	}

	// From here on the transport has committed to a 200; every fault is
	// reported as an in-stream event.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	writer := &sseWriter{w: w, flusher: flusher}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Panic during chat stream",
				zap.Any("panic", rec),
				zap.String("user_id", session.UserID),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			_ = writer.WriteEvent(assistant.Event{Type: assistant.EventError, Text: "Oops, an error occurred!"})
		}
	}()

	if err := h.assistant.Stream(ctx, conv, writer); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			_ = writer.WriteEvent(assistant.Event{Type: assistant.EventError, Text: "Oops, an error occurred!"})
			return
		}
		// Client abort or write failure; nothing left to tell them.
		h.logger.Info("Chat stream ended early",
			zap.Error(err),
			zap.String("user_id", session.UserID))
	}
}

func (h *Handler) resolveSession(r *http.Request) *auth.Session {
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil {
		return nil
	}
	return h.sessions.Resolve(r.Context(), cookie.Value)
}

// sseWriter frames events as server-sent data lines, flushing each one
// so ordering survives proxies and buffering.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) WriteEvent(ev assistant.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
