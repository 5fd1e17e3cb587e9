package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iteira-dev/consult-agent/internal/agent"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// NoReplyFallback is sent when a turn produced no assistant message (e.g.
// the profile extractor returned something unparseable).
const NoReplyFallback = "⚠️ Извините, не удалось сформировать ответ."

// VoiceNotSupportedReply answers voice notes; the bot works with text only.
const VoiceNotSupportedReply = "Извините, я пока не умею слушать голосовые сообщения. Напишите, пожалуйста, текстом."

// Bot drives the long-polling loop: one goroutine per inbound message, with
// per-session ordering delegated to the agent service.
type Bot struct {
	client  *Client
	service *agent.Service
}

func NewBot(client *Client, service *agent.Service) *Bot {
	return &Bot{client: client, service: service}
}

// Run polls until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	logx.Info().Msg("telegram bot started")
	var offset int64

	for {
		select {
		case <-ctx.Done():
			logx.Info().Msg("telegram bot stopped")
			return ctx.Err()
		default:
		}

		updates, err := b.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logx.Error().Err(err).Msg("getUpdates failed")
			time.Sleep(3 * time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			if strings.TrimSpace(update.Message.Text) == "" {
				if update.Message.Voice != nil {
					go b.send(ctx, update.Message.Chat.ID, VoiceNotSupportedReply)
				}
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	sessionID := fmt.Sprintf("tg:%d", msg.Chat.ID)

	if strings.TrimSpace(msg.Text) == "/start" {
		if err := b.service.ClearSession(ctx, sessionID); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to clear session")
		}
		b.send(ctx, msg.Chat.ID, "Здравствуйте! Я помощник салона красоты «Итейра». Как я могу к вам обращаться?")
		return
	}

	if err := b.client.SendTyping(ctx, msg.Chat.ID); err != nil {
		logx.Debug().Err(err).Msg("typing indicator failed")
	}

	signal, err := b.service.HandleMessage(ctx, sessionID, msg.Text)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("message handling failed")
		b.send(ctx, msg.Chat.ID, NoReplyFallback)
		return
	}

	reply := strings.TrimSpace(signal.Text)
	if reply == "" {
		reply = NoReplyFallback
	}
	b.send(ctx, msg.Chat.ID, reply)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendMessage(ctx, chatID, text); err != nil {
		logx.Error().Err(err).Int64("chat_id", chatID).Msg("sendMessage failed")
	}
}
