package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/shopchat/internal/assistant"
	"github.com/ent0n29/shopchat/internal/chatlog"
	"github.com/ent0n29/shopchat/internal/prompt"
)

const (
	defaultHistoryLimit = 50
	debugTurnLimit      = 5
)

type chatMessage struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
}

type chatHistoryResponse struct {
	History    []chatlog.Item `json:"history"`
	TotalCount int            `json:"total_count"`
	Status     string         `json:"status"`
}

// readChatMessage decodes a chat body and rejects blank queries with 400.
func readChatMessage(w http.ResponseWriter, r *http.Request) (chatMessage, bool) {
	var msg chatMessage
	if err := decodeJSON(r, &msg); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return msg, false
	}
	if strings.TrimSpace(msg.Query) == "" {
		respondError(w, http.StatusBadRequest, "empty_message", prompt.EmptyMessageDetail)
		return msg, false
	}
	return msg, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	msg, ok := readChatMessage(w, r)
	if !ok {
		return
	}
	messageID := uuid.NewString()
	now := s.now()

	reply, err := s.assistant.Respond(r.Context(), assistant.Request{
		Query:    msg.Query,
		ThreadID: msg.ThreadID,
		UserID:   msg.UserID,
	})
	if err != nil {
		s.logger.Error("chat turn failed", "message_id", messageID, "thread_id", reply.ThreadID, "error", err)
		respondError(w, http.StatusInternalServerError, "chat_failed", reply.Text)
		return
	}

	s.chatLog.Append(chatlog.Item{
		MessageID:   messageID,
		UserMessage: msg.Query,
		BotResponse: reply.Text,
		ThreadID:    reply.ThreadID,
		UserID:      reply.UserID,
		Timestamp:   now,
	})

	respondJSON(w, http.StatusOK, chatResponse{
		Response:  reply.Text,
		MessageID: messageID,
		Timestamp: now,
		Status:    "success",
		ThreadID:  reply.ThreadID,
		UserID:    reply.UserID,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	msg, ok := readChatMessage(w, r)
	if !ok {
		return
	}

	reply, err := s.assistant.Respond(r.Context(), assistant.Request{
		Query:    msg.Query,
		ThreadID: msg.ThreadID,
		UserID:   msg.UserID,
	})
	if err != nil {
		s.logger.Error("chat stream turn failed", "thread_id", reply.ThreadID, "error", err)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Thread-ID", reply.ThreadID)
	w.Header().Set("X-User-ID", reply.UserID)
	w.WriteHeader(http.StatusOK)

	if err != nil {
		// The body carries the error text; the status is already committed.
		_, _ = w.Write([]byte(reply.Text))
		return
	}

	flusher, _ := w.(http.Flusher)
	for _, token := range strings.Fields(reply.Text) {
		if r.Context().Err() != nil {
			return
		}
		if _, err := w.Write([]byte(token + " ")); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, chatHistoryResponse{
		History:    s.chatLog.Recent(limit),
		TotalCount: s.chatLog.Len(),
		Status:     "success",
	})
}

func (s *Server) handleClearChatLog(w http.ResponseWriter, _ *http.Request) {
	n := s.chatLog.Clear()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       fmt.Sprintf("%d개의 대화 내역이 삭제되었습니다", n),
		"deleted_count": n,
	})
}

func (s *Server) handleClearThread(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
	if threadID == "" {
		respondError(w, http.StatusBadRequest, "invalid_thread_id", "missing thread id")
		return
	}
	n, err := s.assistant.ClearThread(r.Context(), threadID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "clear_failed", "히스토리 삭제 중 오류가 발생했습니다: "+err.Error())
		return
	}
	message := fmt.Sprintf("스레드 %s의 %d개 대화가 삭제되었습니다", threadID, n)
	if n == 0 {
		message = fmt.Sprintf("스레드 %s에 삭제할 대화가 없습니다", threadID)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"message":       message,
		"deleted_count": n,
		"thread_id":     threadID,
	})
}

func (s *Server) handleThreadDebug(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(chi.URLParam(r, "thread_id"))
	if threadID == "" {
		respondError(w, http.StatusBadRequest, "invalid_thread_id", "missing thread id")
		return
	}
	debug, err := s.assistant.ThreadDebug(r.Context(), threadID, debugTurnLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "debug_failed", "디버깅 정보 조회 중 오류가 발생했습니다: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, debug)
}

func (s *Server) handleChatStatus(w http.ResponseWriter, _ *http.Request) {
	var lastActivity *time.Time
	if item, ok := s.chatLog.Last(); ok {
		ts := item.Timestamp
		lastActivity = &ts
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "active",
		"service":             serviceName,
		"total_conversations": s.chatLog.Len(),
		"last_activity":       lastActivity,
		"completion_provider": s.assistant.CompletionProvider(),
		"search_provider":     s.assistant.SearchProvider(),
	})
}
