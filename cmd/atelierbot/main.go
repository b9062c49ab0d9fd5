package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"atelierbot/internal/admin"
	"atelierbot/internal/ai"
	"atelierbot/internal/api"
	"atelierbot/internal/feedback"
	"atelierbot/internal/location"
	"atelierbot/internal/notify"
	"atelierbot/internal/pricing"
	"atelierbot/internal/scheduler"
	"atelierbot/internal/session"
	"atelierbot/internal/store"
	"atelierbot/internal/telegram"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "HTTP bind address")
		dbPath      = flag.String("db", "atelierbot.db", "SQLite DB path")
		pricingPath = flag.String("pricing", "", "pricing config TOML path (defaults when empty)")
		scanCron    = flag.String("scan-cron", "*/15 * * * *", "cron expression for the feedback due scan")
		scanCheck   = flag.Duration("scan-check", 30*time.Second, "poll interval for the scan scheduler")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address for session state")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer rdb.Close()

	customers := store.NewCustomerRepo(db)
	tasks := store.NewFeedbackRepo(db)

	adapter := telegram.NewAdapter(requireEnv("TELEGRAM_BOT_TOKEN"), log.Logger)
	adminIDs := splitIDs(os.Getenv("ADMIN_IDS"))

	pricingCfg, err := pricing.LoadConfig(*pricingPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load pricing config")
	}

	scheduleText := normalizeMultiline(requireEnv("LOCATION_SCHEDULE_TEXT"))
	contactPhone := requireEnv("LOCATION_CONTACT_PHONE")

	fb := feedback.NewService(customers, tasks, adapter, adminIDs, os.Getenv("MAPS_URL"), log.Logger)
	nt := notify.NewService(customers, adapter, fb, scheduleText, contactPhone, log.Logger)
	ad := admin.NewService(customers, adapter, log.Logger)
	loc := location.NewService(adapter, location.Info{
		Latitude:     requireFloat("LOCATION_LAT"),
		Longitude:    requireFloat("LOCATION_LON"),
		VideoURL:     requireEnv("LOCATION_VIDEO_URL"),
		ScheduleText: scheduleText,
		ContactPhone: contactPhone,
	})

	adminSet := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminSet[id] = true
	}

	instagramURL := os.Getenv("INSTAGRAM_URL")
	if instagramURL == "" {
		instagramURL = "https://instagram.com/your-portfolio"
		log.Warn().Msg("INSTAGRAM_URL missing; using default placeholder link")
	}
	supportContact := os.Getenv("SUPPORT_CONTACT_USERNAME")
	if supportContact == "" {
		supportContact = "@SupportHero"
	}

	handler := api.NewServer(api.Deps{
		Customers: customers,
		Feedback:  fb,
		Notify:    nt,
		Admin:     ad,
		Location:  loc,
		Pricing:   pricingCfg,
		Estimator: ai.NewEstimator(os.Getenv("GEMINI_API_KEY")),
		Sessions:  session.NewStore(rdb),
		Messenger: adapter,
		Log:       log.Logger,
	}, api.Config{
		InternalAPIKey: requireEnv("INTERNAL_API_KEY"),
		CronSecret:     os.Getenv("CRON_SECRET"),
		AdminIDs:       adminSet,
		InstagramURL:   instagramURL,
		SupportContact: supportContact,
		ScheduleText:   scheduleText,
		ContactPhone:   contactPhone,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched, err := scheduler.NewService(fb, *scanCron, *scanCheck)
	if err != nil {
		log.Fatal().Err(err).Str("cron", *scanCron).Msg("invalid scan cron expression")
	}
	go sched.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	sched.Stop()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}

func requireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		log.Fatal().Str("name", name).Msg("missing required environment variable")
	}
	return v
}

func requireFloat(name string) float64 {
	f, err := strconv.ParseFloat(requireEnv(name), 64)
	if err != nil {
		log.Fatal().Err(err).Str("name", name).Msg("invalid float environment variable")
	}
	return f
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// normalizeMultiline strips wrapping quotes and turns escaped newlines into
// real ones, so multi-line schedules survive .env files.
func normalizeMultiline(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 2 {
		if (trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"') ||
			(trimmed[0] == '\'' && trimmed[len(trimmed)-1] == '\'') {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
	}
	return strings.ReplaceAll(trimmed, `\n`, "\n")
}
