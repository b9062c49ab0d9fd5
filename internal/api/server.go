package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"atelierbot/internal/admin"
	"atelierbot/internal/ai"
	"atelierbot/internal/feedback"
	"atelierbot/internal/location"
	"atelierbot/internal/notify"
	"atelierbot/internal/pricing"
	"atelierbot/internal/session"
	"atelierbot/internal/store"
	"atelierbot/internal/telegram"
)

// Messenger is the adapter surface the router itself uses (menus, direct
// replies); specialised sends live in the services.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string) bool
	SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool
}

// Config carries the router's secrets and static reply content.
type Config struct {
	InternalAPIKey string
	CronSecret     string
	AdminIDs       map[string]bool
	InstagramURL   string
	SupportContact string
	ScheduleText   string
	ContactPhone   string
}

type Server struct {
	customers store.CustomerRepository
	feedback  *feedback.Service
	notify    *notify.Service
	admin     *admin.Service
	location  *location.Service
	pricing   pricing.Config
	estimator *ai.Estimator
	sessions  *session.Store
	msg       Messenger
	cfg       Config
	log       zerolog.Logger
}

type Deps struct {
	Customers store.CustomerRepository
	Feedback  *feedback.Service
	Notify    *notify.Service
	Admin     *admin.Service
	Location  *location.Service
	Pricing   pricing.Config
	Estimator *ai.Estimator
	Sessions  *session.Store
	Messenger Messenger
	Log       zerolog.Logger
}

func NewServer(d Deps, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{
		customers: d.Customers,
		feedback:  d.Feedback,
		notify:    d.Notify,
		admin:     d.Admin,
		location:  d.Location,
		pricing:   d.Pricing,
		estimator: d.Estimator,
		sessions:  d.Sessions,
		msg:       d.Messenger,
		cfg:       cfg,
		log:       d.Log,
	}

	r.Get("/health", s.health)
	r.Post("/webhook/telegram", s.webhook)
	r.Post("/trigger-notification", s.triggerNotification)
	r.Get("/tasks/check-feedback", s.checkFeedback)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// mainMenuButtons are texts that abort an awaiting-prompt session instead of
// being fed to the estimator.
var mainMenuButtons = map[string]bool{
	"📊 Статистика": true, "📊 Stats": true,
	"📢 Розсилка": true, "📢 Broadcast": true,
	"💰 Ціни": true, "💰 Prices": true,
	"🪄 AI Оцінка вартості": true, "🧮 AI Калькулятор вартості": true,
	"📸 Наші роботи": true, "📸 Our Work": true,
	"📍 Локація": true, "Локація": true,
	"📅 Графік": true, "Графік": true,
	"📞 Контактний телефон": true, "Контактний телефон": true,
	"🆘 Допомога": true, "📞 Поділитись номером": true,
}

type webhookUpdate struct {
	Message *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text    string `json:"text"`
		Contact *struct {
			PhoneNumber string `json:"phone_number"`
			FirstName   string `json:"first_name"`
		} `json:"contact"`
	} `json:"message"`
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	var upd webhookUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if upd.Message == nil {
		w.Write([]byte("OK"))
		return
	}

	ctx := r.Context()
	chatID := strconv.FormatInt(upd.Message.Chat.ID, 10)

	switch {
	case upd.Message.Contact != nil:
		s.handleContact(ctx, chatID, upd.Message.Contact.PhoneNumber, upd.Message.Contact.FirstName)
	case upd.Message.Text != "":
		s.handleText(ctx, chatID, strings.TrimSpace(upd.Message.Text))
	}
	w.Write([]byte("OK"))
}

func (s *Server) handleText(ctx context.Context, chatID, text string) {
	s.log.Info().Str("chat_id", chatID).Str("text", snippet(text)).Msg("webhook text")

	if state, err := s.sessions.Get(ctx, chatID); err == nil && state == session.StateAwaitingAIPrompt {
		if err := s.sessions.Clear(ctx, chatID); err != nil {
			s.log.Error().Err(err).Str("chat_id", chatID).Msg("clear session")
		}
		if !strings.HasPrefix(text, "/") && !mainMenuButtons[text] {
			s.handleAIPrompt(ctx, chatID, text)
			return
		}
		// Menu taps fall through to normal routing.
	}

	switch {
	case text == telegram.ButtonPickupYes:
		s.handleErr(chatID, s.feedback.HandlePickupResponse(ctx, chatID, feedback.PickupYes, time.Time{}))
	case text == telegram.ButtonPickupNo:
		s.handleErr(chatID, s.feedback.HandlePickupResponse(ctx, chatID, feedback.PickupNo, time.Time{}))
	case len(text) == 1 && text >= "1" && text <= "5":
		score, _ := strconv.Atoi(text)
		s.handleErr(chatID, s.feedback.HandleRating(ctx, chatID, score))
	case text == "/help" || text == "🆘 Допомога":
		s.msg.SendMessage(ctx, chatID, fmt.Sprintf(
			"🆘 Потрібна допомога?\nЯкщо у вас є питання щодо замовлення, звертайтеся напряму:\n👤 %s\n📞 %s",
			s.cfg.SupportContact, s.cfg.ContactPhone))
	case text == "/admin":
		if s.isAdmin(chatID) {
			s.msg.SendMessageWith(ctx, chatID, "🔐 Адмін меню", telegram.AdminKeyboard(), "")
			return
		}
		s.msg.SendMessage(ctx, chatID, "🤔 Команда не розпізнана.")
		s.welcome(ctx, chatID)
	case text == "📊 Статистика" || text == "📊 Stats":
		if !s.requireAdmin(ctx, chatID) {
			return
		}
		s.handleErr(chatID, s.admin.SendStats(ctx, chatID))
	case text == "📢 Розсилка" || text == "📢 Broadcast":
		if !s.requireAdmin(ctx, chatID) {
			return
		}
		s.admin.SendBroadcastInstructions(ctx, chatID)
	case strings.HasPrefix(text, "/broadcast"):
		if !s.requireAdmin(ctx, chatID) {
			return
		}
		s.handleErr(chatID, s.admin.Broadcast(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/broadcast"))))
	case strings.HasPrefix(text, "/start"):
		s.welcome(ctx, chatID)
	case text == "📸 Наші роботи" || text == "📸 Our Work":
		s.msg.SendMessageWith(ctx, chatID,
			fmt.Sprintf("👀 *Подивіться наше портфоліо!*\n\nОсь наші останні роботи:\n%s", s.cfg.InstagramURL),
			telegram.LinkButton("Відкрити Instagram", s.cfg.InstagramURL), "Markdown")
	case text == "📍 Локація" || text == "Локація" || text == "/location":
		s.location.SendDetails(ctx, chatID)
	case text == "💰 Ціни" || text == "💰 Prices":
		s.msg.SendMessageWith(ctx, chatID, s.pricing.FormatPriceList(), nil, "Markdown")
	case text == "🪄 AI Оцінка вартості":
		s.startAIPrompt(ctx, chatID)
	case text == "🧮 AI Калькулятор вартості":
		if !s.requireAdmin(ctx, chatID) {
			return
		}
		s.startAIPrompt(ctx, chatID)
	case text == "📅 Графік" || text == "Графік":
		s.msg.SendMessage(ctx, chatID, s.cfg.ScheduleText)
	case text == "📞 Контактний телефон" || text == "Контактний телефон":
		s.msg.SendMessage(ctx, chatID, "📞 "+s.cfg.ContactPhone)
	}
}

func (s *Server) handleContact(ctx context.Context, chatID, phone, firstName string) {
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	name := firstName
	if name == "" {
		name = "Client"
	}

	if err := s.customers.Upsert(ctx, phone, name, chatID); err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("save customer contact")
		return
	}
	s.log.Info().Str("chat_id", chatID).Str("phone", phone).Msg("customer contact saved")

	s.msg.SendMessageWith(ctx, chatID,
		fmt.Sprintf("✅ *Дякуємо, зберегли ваш номер!*\n\n"+
			"Коли замовлення буде готове, бот надішле сповіщення тут.\n"+
			"Щоб не пропустити оновлення, збережіть цей чат.\n\n"+
			"Поки чекаєте, зазирніть у наш Instagram 👇\n%s", s.cfg.InstagramURL),
		telegram.LinkButton("Відкрити Instagram", s.cfg.InstagramURL), "Markdown")

	s.msg.SendMessageWith(ctx, chatID,
		`Натисніть "📍 Локація" щоб отримати адресу та "📞 Контактний телефон" для дзвінка.`,
		telegram.MemberKeyboard(), "")
}

func (s *Server) welcome(ctx context.Context, chatID string) {
	cust, err := s.customers.GetByChatID(ctx, chatID)
	if err == nil {
		name := cust.Name
		if name == "" {
			name = "друже"
		}
		s.msg.SendMessageWith(ctx, chatID,
			fmt.Sprintf("🎉 З поверненням, %s! Чим можемо допомогти?", name),
			telegram.MemberKeyboard(), "")
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("welcome lookup")
	}
	s.msg.SendMessageWith(ctx, chatID,
		"👋 Вітаємо! Щоб почати роботу, будь ласка, поділіться номером.",
		telegram.GuestKeyboard(), "")
}

func (s *Server) startAIPrompt(ctx context.Context, chatID string) {
	if err := s.sessions.Set(ctx, chatID, session.StateAwaitingAIPrompt); err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("set session")
		return
	}
	s.msg.SendMessage(ctx, chatID,
		"🧵 Опишіть своїми словами, що потрібно зробити? "+
			"(Наприклад: 'Треба вкоротити джинси, але зберегти оригінальний шов' "+
			"або 'Замінити блискавку на зимовій куртці').")
}

func (s *Server) handleAIPrompt(ctx context.Context, chatID, text string) {
	s.msg.SendMessage(ctx, chatID, "⏳ Аналізую запит...")

	est := s.estimator.Analyze(ctx, text)
	bd, err := s.pricing.MinPrice(est.EstimatedMinutes)
	if err != nil {
		s.msg.SendMessageWith(ctx, chatID,
			"⚠️ Вибачте, штучний інтелект тимчасово недоступний або не зміг обробити запит. "+
				"Спробуйте пізніше або оберіть послугу з меню.",
			s.mainMenuMarkup(ctx, chatID), "")
		return
	}

	var reply string
	if s.isAdmin(chatID) {
		reply = fmt.Sprintf(
			"🧮 **AI Калькулятор вартості:**\nЗавдання: *%s*\nОцінений час: **%d хв**\n\n"+
				"💰 **Вартість:**\n- Робота (час): %d грн\n- Амортизація та комунальні: %d грн\n"+
				"- Матеріали: %d грн\n- Податок (%d%%): %d грн\n\n"+
				"🏆 **Мінімальна ціна для клієнта: %d грн**",
			est.TaskSummary, est.EstimatedMinutes,
			bd.Labor, bd.Overhead+int(s.pricing.DepreciationFee),
			int(s.pricing.ConsumablesFee), int(s.pricing.TaxRate*100), bd.Tax,
			bd.FinalPrice)
	} else {
		reply = fmt.Sprintf(
			"🪄 **Попередня оцінка AI:**\nЗавдання: *%s*\nОрієнтовна вартість: **~%d грн**",
			est.TaskSummary, bd.FinalPrice) + ai.Disclaimer
	}
	s.msg.SendMessageWith(ctx, chatID, reply, s.mainMenuMarkup(ctx, chatID), "Markdown")
}

func (s *Server) mainMenuMarkup(ctx context.Context, chatID string) any {
	if s.isAdmin(chatID) {
		return telegram.AdminKeyboard()
	}
	if _, err := s.customers.GetByChatID(ctx, chatID); err == nil {
		return telegram.MemberKeyboard()
	}
	return telegram.GuestKeyboard()
}

func (s *Server) isAdmin(chatID string) bool { return s.cfg.AdminIDs[chatID] }

// requireAdmin redirects non-admins back to the guest flow.
func (s *Server) requireAdmin(ctx context.Context, chatID string) bool {
	if s.isAdmin(chatID) {
		return true
	}
	s.msg.SendMessage(ctx, chatID, "Повертаємо вас до головного меню 🧵")
	s.msg.SendMessageWith(ctx, chatID, "👋 Вітаємо! Щоб продовжити, поділіться своїм номером.",
		telegram.GuestKeyboard(), "")
	return false
}

func (s *Server) handleErr(chatID string, err error) {
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("webhook handler failed")
	}
}

type triggerReq struct {
	PhoneNumber string `json:"phone_number"`
	Phone       string `json:"phone"`
	OrderID     string `json:"order_id"`
}

func (s *Server) triggerNotification(w http.ResponseWriter, r *http.Request) {
	if key := r.Header.Get("X-Internal-API-Key"); key == "" || key != s.cfg.InternalAPIKey {
		http.Error(w, "Unauthorized", http.StatusForbidden)
		return
	}

	var req triggerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	phone := req.PhoneNumber
	if phone == "" {
		phone = req.Phone
	}

	status := "Success"
	switch err := s.notify.NotifyOrderReady(r.Context(), phone, req.OrderID); {
	case errors.Is(err, notify.ErrCustomerNotFound):
		status = "Failed: User not found (Not subscribed to bot)"
	case errors.Is(err, notify.ErrDeliveryFailed):
		status = "Failed: Telegram API Error"
	case err != nil:
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]string{"status": status})
}

func (s *Server) checkFeedback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != s.cfg.CronSecret {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	processed, err := s.feedback.ProcessDueTasks(r.Context(), time.Time{})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]int{"processed": processed})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func snippet(s string) string {
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}
