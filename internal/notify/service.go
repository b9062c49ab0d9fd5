// Package notify tells a customer their order is ready and kicks off the
// feedback follow-up flow.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"atelierbot/internal/feedback"
	"atelierbot/internal/store"
)

var (
	// ErrCustomerNotFound means the phone number has never been linked to a
	// chat, i.e. the customer is not subscribed to the bot.
	ErrCustomerNotFound = errors.New("customer not subscribed")
	// ErrDeliveryFailed means the messaging platform rejected the send.
	ErrDeliveryFailed = errors.New("notification not delivered")
)

type Messenger interface {
	SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool
}

type Service struct {
	customers    store.CustomerRepository
	msg          Messenger
	feedback     *feedback.Service
	scheduleText string
	contactPhone string
	log          zerolog.Logger
}

func NewService(customers store.CustomerRepository, msg Messenger, fb *feedback.Service, scheduleText, contactPhone string, log zerolog.Logger) *Service {
	return &Service{
		customers:    customers,
		msg:          msg,
		feedback:     fb,
		scheduleText: scheduleText,
		contactPhone: contactPhone,
		log:          log,
	}
}

// NotifyOrderReady looks the customer up by phone, sends the ready message
// and, once delivery is confirmed, schedules the pickup follow-up.
func (s *Service) NotifyOrderReady(ctx context.Context, phone, orderID string) error {
	cust, err := s.customers.GetByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return ErrCustomerNotFound
	}
	if err != nil {
		return fmt.Errorf("look up customer: %w", err)
	}

	message := fmt.Sprintf(
		"🎉 *Ура! Ваше замовлення вже готове!*\n\n"+
			"Ми все підготували і чекаємо на вас.\n\n"+
			"🏃 **Забігайте, коли зручно!**\n\n"+
			"💡 *Порада:* Плануєте візит на самий ранок або під закриття? "+
			"Краще наберіть нас заздалегідь, щоб ми точно не розминулися! 😉\n\n"+
			"📞 **%s**\n\n"+
			"⏰ **Наш графік:**\n%s",
		s.contactPhone, s.scheduleText)

	if !s.msg.SendMessageWith(ctx, cust.ChatID, message, nil, "Markdown") {
		return ErrDeliveryFailed
	}

	if err := s.feedback.ScheduleFollowUp(ctx, cust.ID, time.Time{}); err != nil {
		// The customer already has their notification; a lost follow-up is
		// logged, not surfaced as a delivery failure.
		s.log.Error().Err(err).Int64("customer_id", cust.ID).Str("order_id", orderID).Msg("schedule follow-up failed")
	}
	s.log.Info().Int64("customer_id", cust.ID).Str("order_id", orderID).Msg("order-ready notification delivered")
	return nil
}
