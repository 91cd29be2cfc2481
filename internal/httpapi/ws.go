package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/shopchat/internal/assistant"
	"github.com/ent0n29/shopchat/internal/chatlog"
	"github.com/ent0n29/shopchat/internal/protocol"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 1 << 20
)

// handleChatWS runs chat turns over a websocket. Turns on one connection are
// answered in order; each reply is streamed as response_delta tokens followed
// by a response_end.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveWebSockets.Inc()
		defer s.metrics.ActiveWebSockets.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.ChatRequest, 16)
	outbound := make(chan any, 256)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for req := range inbound {
			if ctx.Err() != nil {
				return
			}
			s.runWSTurn(ctx, req, outbound)
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.observeWSMessage("outbound", t)
				}
			}
		}
	}()

	send(ctx, outbound, protocol.SystemEvent{
		Type: protocol.TypeSystemEvent,
		Code: "connected",
		TSMs: time.Now().UnixMilli(),
	})

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(ctx, outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.observeWSMessage("inbound", t)
		}

		switch m := parsed.(type) {
		case protocol.ClientPing:
			send(ctx, outbound, protocol.SystemEvent{
				Type: protocol.TypeSystemEvent,
				Code: "pong",
				TSMs: m.TSMs,
			})
		case protocol.ChatRequest:
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- m:
			}
		}
	}

	close(inbound)
	cancel()
	<-workerDone
	<-writerDone
}

func (s *Server) runWSTurn(ctx context.Context, req protocol.ChatRequest, outbound chan<- any) {
	messageID := uuid.NewString()
	now := s.now()
	reply, err := s.assistant.Respond(ctx, assistant.Request{
		Query:    req.Query,
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("websocket chat turn failed", "message_id", messageID, "thread_id", reply.ThreadID, "error", err)
		send(ctx, outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			Code:      "chat_failed",
			Retryable: true,
			Detail:    reply.Text,
			MessageID: messageID,
		})
		return
	}

	s.chatLog.Append(chatlog.Item{
		MessageID:   messageID,
		UserMessage: req.Query,
		BotResponse: reply.Text,
		ThreadID:    reply.ThreadID,
		UserID:      reply.UserID,
		Timestamp:   now,
	})

	for _, token := range strings.Fields(reply.Text) {
		if !send(ctx, outbound, protocol.ResponseDelta{
			Type:      protocol.TypeResponseDelta,
			MessageID: messageID,
			TextDelta: token + " ",
		}) {
			return
		}
	}
	send(ctx, outbound, protocol.ResponseEnd{
		Type:      protocol.TypeResponseEnd,
		MessageID: messageID,
		ThreadID:  reply.ThreadID,
		UserID:    reply.UserID,
		Source:    reply.Source,
		Fallback:  reply.Fallback,
	})
}

// send queues msg for the single writer goroutine. It reports false once the
// connection is gone.
func send(ctx context.Context, outbound chan<- any, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case outbound <- msg:
		return true
	}
}

func (s *Server) observeWSMessage(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatRequest:
		return m.Type, true
	case protocol.ClientPing:
		return m.Type, true
	case protocol.ResponseDelta:
		return m.Type, true
	case protocol.ResponseEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
