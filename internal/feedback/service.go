// Package feedback drives the post-order follow-up flow: a delayed "did you
// pick this up?" prompt with bounded weekend-aware retries, then a 1-5 rating
// request with admin escalation on low scores.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"atelierbot/internal/calendar"
	"atelierbot/internal/domain"
	"atelierbot/internal/store"
	"atelierbot/internal/telegram"
)

const (
	// FirstPromptHours is the delay between the order-ready notification and
	// the first pickup prompt.
	FirstPromptHours = 48
	// RetryHours is the delay applied after each "not yet" answer and after
	// each delivered prompt.
	RetryHours = 36
	// MaxPickupAttempts is the retry ceiling; reaching it cancels the task.
	MaxPickupAttempts = 3
)

const (
	checkText    = "👋 Привіт! Минуло кілька днів як ваше замовлення готове. Ви вже встигли його забрати?"
	notYetText   = "Ой, ваші речі вже сумують за вами! 🧥 Чекаємо в робочий час."
	ratingPrompt = "Чудово! Як вам якість нашої роботи? Оцініть, будь ласка:"

	thanksFive  = "Дякуємо! 😍 Ми дуже раді! Будемо вдячні за відгук у Google Maps."
	thanksFour  = "Дякуємо! Ми будемо старатися ще краще. 🙌"
	apologyText = "Нам прикро. 😔 Власник зв'яжеться з вами."
)

// PickupResponse is what the router recognized from the two pickup buttons.
type PickupResponse string

const (
	PickupYes PickupResponse = "yes"
	PickupNo  PickupResponse = "no"
)

// Messenger is the slice of the messaging adapter this service needs.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) bool
	SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool
}

type Service struct {
	customers store.CustomerRepository
	tasks     store.FeedbackRepository
	msg       Messenger
	adminIDs  []string
	mapsURL   string
	openHour  int
	log       zerolog.Logger
}

func NewService(customers store.CustomerRepository, tasks store.FeedbackRepository, msg Messenger, adminIDs []string, mapsURL string, log zerolog.Logger) *Service {
	return &Service{
		customers: customers,
		tasks:     tasks,
		msg:       msg,
		adminIDs:  adminIDs,
		mapsURL:   mapsURL,
		openHour:  calendar.DefaultOpenHour,
		log:       log,
	}
}

// ScheduleFollowUp creates a pending follow-up task due FirstPromptHours from
// now. An already-active task for the customer is cancelled first, so at most
// one active task per customer survives a double-fired notification.
func (s *Service) ScheduleFollowUp(ctx context.Context, customerID int64, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	active, err := s.tasks.GetLatestTaskForCustomer(ctx, customerID, domain.StatusPending, domain.StatusAskingPickup)
	switch {
	case err == nil:
		cancelled := domain.StatusCancelled
		if err := s.tasks.UpdateTask(ctx, active.ID, store.TaskUpdate{Status: &cancelled}); err != nil {
			return fmt.Errorf("cancel superseded task: %w", err)
		}
		s.log.Info().Str("task_id", active.ID).Int64("customer_id", customerID).Msg("superseded active follow-up")
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("look up active task: %w", err)
	}

	scheduledFor := calendar.ScheduleAfterHours(now, FirstPromptHours, s.openHour)
	task, err := s.tasks.CreateTask(ctx, customerID, now, scheduledFor, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("create follow-up task: %w", err)
	}
	s.log.Info().
		Str("task_id", task.ID).
		Int64("customer_id", customerID).
		Time("scheduled_for", scheduledFor).
		Msg("follow-up scheduled")
	return nil
}

// ProcessDueTasks sends the pickup prompt for every due task and returns the
// number of prompts delivered. A task whose send fails is left untouched and
// stays due for the next scan; a task whose owner no longer exists is
// cancelled. The status-guarded update keeps overlapping scans from advancing
// the same task twice.
func (s *Service) ProcessDueTasks(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now()
	}
	due, err := s.tasks.GetDueTasks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("get due tasks: %w", err)
	}

	sent := 0
	for _, task := range due {
		cust, err := s.customers.GetByID(ctx, task.CustomerID)
		if errors.Is(err, store.ErrNotFound) {
			cancelled := domain.StatusCancelled
			if err := s.tasks.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: &cancelled}); err != nil {
				s.log.Error().Err(err).Str("task_id", task.ID).Msg("cancel orphaned task")
			}
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("task_id", task.ID).Msg("resolve task owner")
			continue
		}

		if !s.msg.SendMessageWith(ctx, cust.ChatID, checkText, telegram.PickupKeyboard(), "") {
			continue
		}

		asking := domain.StatusAskingPickup
		next := calendar.ScheduleAfterHours(now, RetryHours, s.openHour)
		ok, err := s.tasks.UpdateTaskIfStatus(ctx, task.ID, task.Status, store.TaskUpdate{
			Status:       &asking,
			ScheduledFor: &next,
		})
		if err != nil {
			s.log.Error().Err(err).Str("task_id", task.ID).Msg("advance task after prompt")
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// HandlePickupResponse advances the customer's active task on a yes/no tap.
// Unknown customers and missing active tasks are stale taps and do nothing.
func (s *Service) HandlePickupResponse(ctx context.Context, chatID string, response PickupResponse, now time.Time) error {
	if now.IsZero() {
		now = time.Now()
	}
	cust, err := s.customers.GetByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up customer: %w", err)
	}
	task, err := s.tasks.GetLatestTaskForCustomer(ctx, cust.ID, domain.StatusPending, domain.StatusAskingPickup)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up active task: %w", err)
	}

	switch response {
	case PickupNo:
		attempts := task.PickupAttempts + 1
		if attempts >= MaxPickupAttempts {
			cancelled := domain.StatusCancelled
			err = s.tasks.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: &cancelled, PickupAttempts: &attempts})
			if err == nil {
				s.log.Info().Str("task_id", task.ID).Int("attempts", attempts).Msg("pickup retries exhausted")
			}
		} else {
			asking := domain.StatusAskingPickup
			next := calendar.ScheduleAfterHours(now, RetryHours, s.openHour)
			err = s.tasks.UpdateTask(ctx, task.ID, store.TaskUpdate{
				Status:         &asking,
				ScheduledFor:   &next,
				PickupAttempts: &attempts,
			})
		}
		if err != nil {
			return fmt.Errorf("record pickup retry: %w", err)
		}
		s.msg.SendMessageWith(ctx, chatID, notYetText, telegram.MemberKeyboard(), "")
	case PickupYes:
		completed := domain.StatusCompleted
		if err := s.tasks.UpdateTask(ctx, task.ID, store.TaskUpdate{Status: &completed}); err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		s.msg.SendMessageWith(ctx, chatID, ratingPrompt, telegram.RatingKeyboard(), "")
	}
	return nil
}

// HandleRating reacts to a 1-5 score for the customer's most recent completed
// task. Scores 1-3 alert every configured admin; one failed admin send never
// blocks the rest, and the customer-facing apology has already gone out.
func (s *Service) HandleRating(ctx context.Context, chatID string, score int) error {
	cust, err := s.customers.GetByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up customer: %w", err)
	}
	if _, err := s.tasks.GetLatestTaskForCustomer(ctx, cust.ID, domain.StatusCompleted); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up completed task: %w", err)
	}

	switch {
	case score == 5:
		var markup any
		if s.mapsURL != "" {
			markup = telegram.LinkButton("🗺️ Google Maps", s.mapsURL)
		}
		s.msg.SendMessageWith(ctx, chatID, thanksFive, markup, "")
	case score == 4:
		s.msg.SendMessageWith(ctx, chatID, thanksFour, telegram.MemberKeyboard(), "")
	case score >= 1 && score <= 3:
		s.msg.SendMessageWith(ctx, chatID, apologyText, telegram.MemberKeyboard(), "")
		alert := fmt.Sprintf("🚨 Negative Feedback! %s (%s) rated %d stars.", cust.Name, cust.Phone, score)
		for _, adminID := range s.adminIDs {
			if !s.msg.SendMessage(ctx, adminID, alert) {
				s.log.Error().Str("admin_id", adminID).Int("score", score).Msg("admin alert not delivered")
			}
		}
	}
	return nil
}
