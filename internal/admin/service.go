// Package admin implements the operator-facing surfaces: user statistics and
// broadcast fan-out.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"atelierbot/internal/store"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) bool
	SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool
}

type Service struct {
	customers store.CustomerRepository
	msg       Messenger
	log       zerolog.Logger
}

func NewService(customers store.CustomerRepository, msg Messenger, log zerolog.Logger) *Service {
	return &Service{customers: customers, msg: msg, log: log}
}

func (s *Service) SendStats(ctx context.Context, chatID string) error {
	count, err := s.customers.Count(ctx)
	if err != nil {
		return fmt.Errorf("count customers: %w", err)
	}
	message := fmt.Sprintf(
		"📊 **Bot Statistics**\n\n👥 Total Users: **%d**\n✅ Active: %d (Assuming all are active for now)",
		count, count)
	s.msg.SendMessageWith(ctx, chatID, message, nil, "Markdown")
	return nil
}

func (s *Service) SendBroadcastInstructions(ctx context.Context, chatID string) {
	message := "⚠️ **Панель керування розсилкою**\n\n" +
		"Щоб надіслати повідомлення ВСІМ користувачам, використайте команду `/broadcast` та ваш текст.\n\n" +
		"**Шаблони для копіювання:**\n\n" +
		"1️⃣ **Нові можливості:**\n" +
		"`/broadcast 🚀 **Оновлення:** Додали нові фічі! Напишіть /start, щоб оновити меню.`\n\n" +
		"2️⃣ **Терміново/Закриття:**\n" +
		"`/broadcast 🕒 **Повідомлення:** Сьогодні зачиняємось трохи раніше. Будь ласка, завітайте до 17:00!`"
	s.msg.SendMessageWith(ctx, chatID, message, nil, "Markdown")
}

// Broadcast fans text out to every known chat. Failures are counted per
// recipient and never stop the loop; the caller gets a completion report.
func (s *Service) Broadcast(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(text) == "" {
		s.SendBroadcastInstructions(ctx, chatID)
		return nil
	}

	ids, err := s.customers.AllChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("list chat ids: %w", err)
	}

	success, failed := 0, 0
	for _, id := range ids {
		if s.msg.SendMessage(ctx, id, text) {
			success++
		} else {
			failed++
			s.log.Warn().Str("chat_id", id).Msg("broadcast recipient unreachable")
		}
	}

	report := fmt.Sprintf("✅ Broadcast complete. Sent to %d users. Failed/Blocked: %d.", success, failed)
	s.msg.SendMessage(ctx, chatID, report)
	s.log.Info().Int("sent", success).Int("failed", failed).Msg("broadcast complete")
	return nil
}
