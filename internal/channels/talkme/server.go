package talkme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iteira-dev/consult-agent/internal/agent"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// ServerConfig configures the inbound webhook server.
type ServerConfig struct {
	ListenAddr  string        `envconfig:"TALKME_LISTEN_ADDR" default:":8081"`
	TurnTimeout time.Duration `envconfig:"TALKME_TURN_TIMEOUT" default:"90s"`
}

// webhookPayload mirrors the TalkMe webhook shape, including the legacy
// fallback fields older dialogs still send.
type webhookPayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Body      string `json:"body"`

	Message json.RawMessage `json:"message"`

	Client *struct {
		ClientID string `json:"clientId"`
		Login    string `json:"login"`
		Phone    string `json:"phone"`
	} `json:"client"`

	OriginalOnlineChatMessage *struct {
		DialogID json.Number `json:"dialogId"`
	} `json:"originalOnlineChatMessage"`
}

// inboundMessage is the normalized webhook content.
type inboundMessage struct {
	Token     string
	SessionID string
	Text      string
}

// Server handles TalkMe webhooks: each inbound message is moderated,
// consulted, answered through the outbound client, and optionally finished
// over to a human operator.
type Server struct {
	service     *agent.Service
	client      *Client
	turnTimeout time.Duration
}

func NewServer(service *agent.Service, client *Client, cfg ServerConfig) *Server {
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Server{service: service, client: client, turnTimeout: timeout}
}

// Routes returns the HTTP mux for the webhook server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/talkme", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions/clear", s.handleClearSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	msg, err := parseWebhook(raw)
	if err != nil {
		logx.Warn().Err(err).Msg("talkme webhook rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// Ack immediately; the platform retries on slow responses. The turn runs
	// detached with its own deadline.
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.turnTimeout)
		defer cancel()
		s.processTurn(ctx, msg)
	}()
}

func (s *Server) processTurn(ctx context.Context, msg inboundMessage) {
	if err := s.client.SimulateTyping(ctx, msg.Token, 15); err != nil {
		logx.Debug().Err(err).Msg("typing simulation failed")
	}

	flags := s.service.Moderate(ctx, msg.Text)

	signal, err := s.service.HandleMessage(ctx, "talkme:"+msg.SessionID, msg.Text)
	if err != nil {
		logx.Error().Err(err).Str("session_id", msg.SessionID).Msg("talkme turn failed")
		signal = model.ReplySignal{Kind: model.SignalPlainReply, Text: model.TurnFailureReply}
	}
	if flags.OffTopic || flags.WantsHuman {
		signal.Kind = model.SignalClassification
		signal.Flags = flags
	}

	reply := strings.TrimSpace(signal.Text)
	if reply == "" {
		reply = model.TurnFailureReply
	}
	if err := s.client.SendMessage(ctx, msg.Token, reply); err != nil {
		logx.Error().Err(err).Str("session_id", msg.SessionID).Msg("talkme send failed")
	}

	// Handoff decisions come after the reply so the caller is never left
	// without an answer.
	switch {
	case flags.WantsHuman:
		logx.Info().Str("session_id", msg.SessionID).Msg("caller requested a human operator")
		if err := s.client.Finish(ctx, msg.Token, FinishOperatorRequest); err != nil {
			logx.Error().Err(err).Msg("operator handoff failed")
		}
	case flags.OffTopic:
		logx.Info().Str("session_id", msg.SessionID).Msg("off-topic question, finishing bot")
		if err := s.client.Finish(ctx, msg.Token, FinishIrrelevant); err != nil {
			logx.Error().Err(err).Msg("finish failed")
		}
	}
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}
	if err := s.service.ClearSession(r.Context(), "talkme:"+sessionID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// parseWebhook normalizes the TalkMe payload, tolerating both the current
// shape (message.text, client, originalOnlineChatMessage) and flat legacy
// fields.
func parseWebhook(raw []byte) (inboundMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return inboundMessage{}, fmt.Errorf("decode payload: %w", err)
	}

	token := strings.TrimSpace(p.Token)
	if len(token) < 10 {
		return inboundMessage{}, fmt.Errorf("missing or invalid token")
	}

	sessionID := p.SessionID
	if sessionID == "" && p.OriginalOnlineChatMessage != nil {
		sessionID = p.OriginalOnlineChatMessage.DialogID.String()
	}
	if sessionID == "" && p.Client != nil {
		if p.Client.ClientID != "" {
			sessionID = p.Client.ClientID
		} else {
			sessionID = p.Client.Login
		}
	}
	if sessionID == "" || sessionID == "0" {
		return inboundMessage{}, fmt.Errorf("missing session id")
	}

	text := extractText(p)
	if strings.TrimSpace(text) == "" {
		return inboundMessage{}, fmt.Errorf("empty message")
	}

	return inboundMessage{Token: token, SessionID: sessionID, Text: text}, nil
}

func extractText(p webhookPayload) string {
	if len(p.Message) > 0 {
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p.Message, &obj); err == nil && obj.Text != "" {
			return obj.Text
		}
		var plain string
		if err := json.Unmarshal(p.Message, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if p.Text != "" {
		return p.Text
	}
	return p.Body
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Error().Err(err).Msg("write response failed")
	}
}
