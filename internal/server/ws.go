package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"tutord/pkg/models"
)

// Inbound socket message types.
const (
	wsSessionStart = "session-start"
	wsChatMessage  = "chat-message"
)

// Outbound socket message types.
const (
	wsSessionStarted = "session-started"
	wsAssistantReply = "assistant-reply"
	wsStateSnapshot  = "state-snapshot"
	wsTurnError      = "turn-error"
)

type wsInbound struct {
	Type      string                 `json:"type"`
	TopicID   string                 `json:"topic_id,omitempty"`
	Profile   *models.StudentProfile `json:"profile,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Text      string                 `json:"text,omitempty"`
}

type wsOutbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleWS runs one chat connection. Each socket processes messages serially;
// a turn's reply and the refreshed state snapshot are pushed before the next
// inbound message is read.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}

		switch in.Type {
		case wsSessionStart:
			s.wsStartSession(ctx, conn, in)
		case wsChatMessage:
			s.wsProcessTurn(ctx, conn, in)
		default:
			s.wsSendError(ctx, conn, "unknown message type "+in.Type)
		}
	}
}

func (s *Server) wsStartSession(ctx context.Context, conn *websocket.Conn, in wsInbound) {
	if in.TopicID == "" {
		s.wsSendError(ctx, conn, "topic_id is required")
		return
	}
	sess, welcome, err := s.orch.StartSession(ctx, in.TopicID, in.Profile)
	if err != nil {
		s.wsSendError(ctx, conn, err.Error())
		return
	}
	s.wsSend(ctx, conn, wsSessionStarted, startSessionResponse{
		Session: snapshotOf(sess),
		Welcome: welcome,
	})
}

func (s *Server) wsProcessTurn(ctx context.Context, conn *websocket.Conn, in wsInbound) {
	if in.SessionID == "" || in.Text == "" {
		s.wsSendError(ctx, conn, "session_id and text are required")
		return
	}
	result, err := s.orch.ProcessTurn(ctx, in.SessionID, in.Text)
	if err != nil {
		s.log.Warn("socket turn failed",
			zap.String("session", in.SessionID),
			zap.Error(err))
		s.wsSendError(ctx, conn, "turn failed, session state unchanged")
		return
	}
	s.wsSend(ctx, conn, wsAssistantReply, result)

	if sess, err := s.store.Get(ctx, in.SessionID); err == nil {
		s.wsSend(ctx, conn, wsStateSnapshot, snapshotOf(sess))
	}
}

func (s *Server) wsSend(ctx context.Context, conn *websocket.Conn, msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("socket payload encode failed", zap.Error(err))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, wsOutbound{Type: msgType, Payload: data}); err != nil {
		s.log.Debug("socket write failed", zap.Error(err))
	}
}

func (s *Server) wsSendError(ctx context.Context, conn *websocket.Conn, msg string) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, wsOutbound{Type: wsTurnError, Error: msg}); err != nil {
		s.log.Debug("socket write failed", zap.Error(err))
	}
}
