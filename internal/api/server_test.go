package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"atelierbot/internal/admin"
	"atelierbot/internal/ai"
	"atelierbot/internal/domain"
	"atelierbot/internal/feedback"
	"atelierbot/internal/location"
	"atelierbot/internal/notify"
	"atelierbot/internal/pricing"
	"atelierbot/internal/session"
	"atelierbot/internal/store"
)

type sentMessage struct {
	ChatID string
	Text   string
	Markup any
}

type fakeMessenger struct {
	sent    []sentMessage
	failAll bool
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID, text string) bool {
	return f.SendMessageWith(ctx, chatID, text, nil, "")
}

func (f *fakeMessenger) SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool {
	if f.failAll {
		return false
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, Markup: markup})
	return true
}

func (f *fakeMessenger) SendLocation(ctx context.Context, chatID string, lat, lon float64) bool {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: fmt.Sprintf("location %v %v", lat, lon)})
	return true
}

func (f *fakeMessenger) SendVideo(ctx context.Context, chatID, videoURL, caption string) bool {
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: "video " + videoURL})
	return true
}

func (f *fakeMessenger) to(chatID string) []sentMessage {
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	handler   http.Handler
	msg       *fakeMessenger
	customers store.CustomerRepository
	tasks     store.FeedbackRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, store.EnsureSchema(db))
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	customers := store.NewCustomerRepo(db)
	tasks := store.NewFeedbackRepo(db)
	msg := &fakeMessenger{}
	logger := zerolog.Nop()

	fb := feedback.NewService(customers, tasks, msg, []string{"42"}, "https://maps.example/review", logger)
	nt := notify.NewService(customers, msg, fb, "Пн-Пт: 10:00-19:00", "073 436 5788", logger)
	ad := admin.NewService(customers, msg, logger)
	loc := location.NewService(msg, location.Info{Latitude: 50.45, Longitude: 30.52, VideoURL: "https://cdn.example/entrance.mp4"})

	handler := NewServer(Deps{
		Customers: customers,
		Feedback:  fb,
		Notify:    nt,
		Admin:     ad,
		Location:  loc,
		Pricing:   pricing.DefaultConfig(),
		Estimator: ai.NewEstimator(""),
		Sessions:  session.NewStore(rdb),
		Messenger: msg,
		Log:       logger,
	}, Config{
		InternalAPIKey: "internal-key",
		CronSecret:     "cron-secret",
		AdminIDs:       map[string]bool{"42": true},
		InstagramURL:   "https://instagram.com/atelier",
		SupportContact: "@SupportHero",
		ScheduleText:   "Пн-Пт: 10:00-19:00",
		ContactPhone:   "073 436 5788",
	})

	return &testEnv{handler: handler, msg: msg, customers: customers, tasks: tasks}
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) sendText(t *testing.T, chatID int64, text string) {
	t.Helper()
	update := fmt.Sprintf(`{"message":{"chat":{"id":%d},"text":%q}}`, chatID, text)
	w := e.do(t, http.MethodPost, "/webhook/telegram", update, nil)
	require.Equal(t, 200, w.Code)
}

func (e *testEnv) seedCustomer(t *testing.T, phone, chatID string) domain.Customer {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.customers.Upsert(ctx, phone, "Olena", chatID))
	c, err := e.customers.GetByPhone(ctx, phone)
	require.NoError(t, err)
	return c
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestCheckFeedback_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, 403, env.do(t, http.MethodGet, "/tasks/check-feedback", "", nil).Code)
	assert.Equal(t, 403, env.do(t, http.MethodGet, "/tasks/check-feedback?token=wrong", "", nil).Code)
}

func TestCheckFeedback_ProcessesDueTasks(t *testing.T) {
	env := newTestEnv(t)
	cust := env.seedCustomer(t, "+380501112233", "777")
	_, err := env.tasks.CreateTask(context.Background(), cust.ID,
		time.Now().Add(-72*time.Hour), time.Now().Add(-time.Hour), domain.StatusPending)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/tasks/check-feedback?token=cron-secret", "", nil)
	require.Equal(t, 200, w.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["processed"])

	prompts := env.msg.to("777")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Text, "забрати")
}

func TestTriggerNotification_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/trigger-notification", `{"phone_number":"+1"}`, nil)
	assert.Equal(t, 403, w.Code)
}

func TestTriggerNotification_UnknownCustomer(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/trigger-notification",
		`{"phone_number":"+380000000000"}`,
		map[string]string{"X-Internal-API-Key": "internal-key"})
	require.Equal(t, 200, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Failed: User not found (Not subscribed to bot)", resp["status"])
}

func TestTriggerNotification_SchedulesFollowUp(t *testing.T) {
	env := newTestEnv(t)
	cust := env.seedCustomer(t, "+380501112233", "777")

	w := env.do(t, http.MethodPost, "/trigger-notification",
		`{"phone_number":"+380501112233","order_id":"ORD-1"}`,
		map[string]string{"X-Internal-API-Key": "internal-key"})
	require.Equal(t, 200, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp["status"])

	require.Len(t, env.msg.to("777"), 1)
	task, err := env.tasks.GetLatestTaskForCustomer(context.Background(), cust.ID, domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, task.Status)
}

func TestWebhook_PickupYesAsksForRating(t *testing.T) {
	env := newTestEnv(t)
	cust := env.seedCustomer(t, "+380501112233", "777")
	_, err := env.tasks.CreateTask(context.Background(), cust.ID,
		time.Now().Add(-72*time.Hour), time.Now(), domain.StatusAskingPickup)
	require.NoError(t, err)

	env.sendText(t, 777, "✅ Так, забрав(ла)")

	replies := env.msg.to("777")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Оцініть")

	task, err := env.tasks.GetLatestTaskForCustomer(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, task.Status)
}

func TestWebhook_LowRatingAlertsAdmin(t *testing.T) {
	env := newTestEnv(t)
	cust := env.seedCustomer(t, "+380501112233", "777")
	_, err := env.tasks.CreateTask(context.Background(), cust.ID,
		time.Now().Add(-72*time.Hour), time.Now(), domain.StatusCompleted)
	require.NoError(t, err)

	env.sendText(t, 777, "2")

	require.Len(t, env.msg.to("777"), 1)
	alerts := env.msg.to("42")
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Text, "2 stars")
	assert.Contains(t, alerts[0].Text, "+380501112233")
}

func TestWebhook_StaleRatingIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.seedCustomer(t, "+380501112233", "777")

	env.sendText(t, 777, "5")

	assert.Empty(t, env.msg.sent)
}

func TestWebhook_ContactSavesCustomer(t *testing.T) {
	env := newTestEnv(t)
	update := `{"message":{"chat":{"id":777},"contact":{"phone_number":"380501112233","first_name":"Olena"}}}`
	w := env.do(t, http.MethodPost, "/webhook/telegram", update, nil)
	require.Equal(t, 200, w.Code)

	cust, err := env.customers.GetByChatID(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, "+380501112233", cust.Phone, "missing plus prefix is normalized")
	assert.Equal(t, "Olena", cust.Name)

	// Confirmation plus the re-opened menu.
	assert.Len(t, env.msg.to("777"), 2)
}

func TestWebhook_StartWelcomesGuestAndMember(t *testing.T) {
	env := newTestEnv(t)

	env.sendText(t, 777, "/start")
	guest := env.msg.to("777")
	require.Len(t, guest, 1)
	assert.Contains(t, guest[0].Text, "поділіться номером")

	env.seedCustomer(t, "+380501112233", "777")
	env.sendText(t, 777, "/start")
	member := env.msg.to("777")
	require.Len(t, member, 2)
	assert.Contains(t, member[1].Text, "З поверненням")
	assert.Contains(t, member[1].Text, "Olena")
}

func TestWebhook_AdminCommandRBAC(t *testing.T) {
	env := newTestEnv(t)

	env.sendText(t, 42, "/admin")
	adminReplies := env.msg.to("42")
	require.Len(t, adminReplies, 1)
	assert.Contains(t, adminReplies[0].Text, "Адмін меню")

	env.sendText(t, 777, "/admin")
	replies := env.msg.to("777")
	require.Len(t, replies, 2, "rejection plus welcome flow")
	assert.Contains(t, replies[0].Text, "не розпізнана")
}

func TestWebhook_StatsForAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seedCustomer(t, "+1", "100")
	env.seedCustomer(t, "+2", "200")

	env.sendText(t, 42, "📊 Статистика")
	replies := env.msg.to("42")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Total Users: **2**")

	env.sendText(t, 100, "📊 Статистика")
	nonAdmin := env.msg.to("100")
	require.Len(t, nonAdmin, 2, "redirected to the guest flow")
}

func TestWebhook_BroadcastFansOut(t *testing.T) {
	env := newTestEnv(t)
	env.seedCustomer(t, "+1", "100")
	env.seedCustomer(t, "+2", "200")

	env.sendText(t, 42, "/broadcast Сьогодні зачиняємось раніше")

	assert.Len(t, env.msg.to("100"), 1)
	assert.Len(t, env.msg.to("200"), 1)
	report := env.msg.to("42")
	require.Len(t, report, 1)
	assert.Contains(t, report[0].Text, "Sent to 2 users")
}

func TestWebhook_PriceList(t *testing.T) {
	env := newTestEnv(t)
	env.sendText(t, 777, "💰 Ціни")

	replies := env.msg.to("777")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Наші ціни")
}

func TestWebhook_LocationSendsPinAndVideo(t *testing.T) {
	env := newTestEnv(t)
	env.sendText(t, 777, "📍 Локація")

	replies := env.msg.to("777")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "location")
	assert.Contains(t, replies[1].Text, "video")
}

func TestWebhook_AIEstimateFlow(t *testing.T) {
	env := newTestEnv(t)

	env.sendText(t, 777, "🪄 AI Оцінка вартості")
	replies := env.msg.to("777")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Опишіть своїми словами")

	// Free text now goes to the estimator; with no API key configured the
	// fallback estimate (60 min) prices at 223.
	env.sendText(t, 777, "вкоротити джинси")
	replies = env.msg.to("777")
	require.Len(t, replies, 3)
	assert.Contains(t, replies[1].Text, "Аналізую")
	assert.Contains(t, replies[2].Text, "223")
	assert.Contains(t, replies[2].Text, "Попередня оцінка AI")
}

func TestWebhook_AIPromptAbortedByMenuTap(t *testing.T) {
	env := newTestEnv(t)

	env.sendText(t, 777, "🪄 AI Оцінка вартості")
	env.sendText(t, 777, "💰 Ціни")

	replies := env.msg.to("777")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[1].Text, "Наші ціни", "menu tap routes normally instead of hitting the estimator")
}

func TestWebhook_IgnoresUnknownUpdate(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/webhook/telegram", `{"edited_message":{}}`, nil)
	assert.Equal(t, 200, w.Code)
	assert.Empty(t, env.msg.sent)
}
