package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"

	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/stream"
)

const maxBodyBytes = 64 << 10

type handlers struct {
	engine  *chat.Engine
	version string
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

func (h *handlers) createChat(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Store().Create(r.Context(), "")
	if err != nil {
		slog.Error("create chat failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"chat_id": st.ChatID})
}

type chatResponse struct {
	ChatID    string                 `json:"chat_id"`
	Title     string                 `json:"title"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Messages  []conversation.Message `json:"messages"`
	Fragments []render.Fragment      `json:"fragments"`
}

func (h *handlers) getChat(w http.ResponseWriter, r *http.Request) {
	st, frags, err := h.engine.Transcript(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ChatID:    st.ChatID,
		Title:     st.Title,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
		Messages:  st.Messages,
		Fragments: frags,
	})
}

func (h *handlers) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reset(r.Context(), chi.URLParam(r, "chatID")); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "empty_message")
		return
	}
	if !h.chatExists(w, r, chatID) {
		return
	}

	sink := stream.NewSSE(w)
	turn, err := h.engine.Submit(r.Context(), chatID, body.Content, sink)
	finishStream(r, sink, turn, err)
}

func (h *handlers) postPurchase(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	var p chat.Purchase
	if !decodeBody(w, r, &p) {
		return
	}
	p, err := p.Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.chatExists(w, r, chatID) {
		return
	}

	sink := stream.NewSSE(w)
	turn, err := h.engine.ConfirmPurchase(r.Context(), chatID, p, sink)
	finishStream(r, sink, turn, err)
}

// finishStream closes an SSE response with a done or error event.
func finishStream(r *http.Request, sink *stream.SSE, turn chat.Turn, err error) {
	httplog.SetAttrs(r.Context(), slog.String("chat_id", turn.ChatID), slog.String("tool", turn.Tool))
	if err != nil {
		slog.Warn("turn failed", slog.String("chat_id", turn.ChatID), slog.Any("error", err))
		_ = sink.Send("error", "", map[string]string{"chat_id": turn.ChatID, "error": err.Error()})
		return
	}
	_ = sink.Send("done", "", turn)
}

func (h *handlers) chatExists(w http.ResponseWriter, r *http.Request, chatID string) bool {
	if _, err := h.engine.Store().Get(r.Context(), chatID); err != nil {
		h.storeError(w, err)
		return false
	}
	return true
}

func (h *handlers) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found")
		return
	}
	slog.Error("store failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}
