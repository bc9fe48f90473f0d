package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/groomly/libs/config"
	otelx "github.com/md-rashed-zaman/groomly/libs/otel"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/consumer"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

type appConfig struct {
	Service string
	Port    string

	Store       string
	DatabaseURL string
	DBMaxConns  int
	Location    *time.Location

	StepMinutes     int
	SuggestionDays  int
	SuggestionCount int
	RejectOverlap   bool

	RecoveryDelay       time.Duration
	RecoveryInterval    time.Duration
	RecoveryMaxFailures int

	KafkaBrokers    string
	KafkaGroupID    string
	KafkaReplyTopic string

	RedisAddr          string
	RateLimitPerMinute int
	CORSOrigins        []string

	NotifyWebhookURL   string
	NotifyWebhookToken string
	MetricsWebhookURL  string

	Tracing otelx.Config
}

// loadConfig reads the environment, after an optional .env file, and
// reports every invalid key at once.
func loadConfig() (appConfig, error) {
	if err := config.LoadDotEnv(); err != nil {
		return appConfig{}, err
	}

	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := appConfig{
		Service:            config.String("SERVICE_NAME", "booking-service"),
		Store:              strings.ToLower(config.String("BOOKING_STORE", storePostgres)),
		KafkaBrokers:       config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:       config.String("KAFKA_GROUP_ID", "booking-service"),
		KafkaReplyTopic:    config.String("KAFKA_REPLY_TOPIC", consumer.CustomerRepliedTopic),
		RedisAddr:          config.String("REDIS_ADDR", ""),
		NotifyWebhookURL:   config.String("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookToken: config.String("NOTIFY_WEBHOOK_TOKEN", ""),
		MetricsWebhookURL:  config.String("METRICS_WEBHOOK_URL", ""),
	}
	for _, origin := range strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8083")
	check(err)
	cfg.Location, err = config.Location("BOOKING_TIMEZONE", "UTC")
	check(err)
	cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	check(err)
	cfg.StepMinutes, err = config.Int("SLOT_STEP_MINUTES", 30)
	check(err)
	cfg.SuggestionDays, err = config.Int("SUGGESTION_DAYS", 7)
	check(err)
	cfg.SuggestionCount, err = config.Int("SUGGESTION_COUNT", 3)
	check(err)
	cfg.RejectOverlap, err = config.Bool("REJECT_OVERLAPPING_WINDOWS", false)
	check(err)
	cfg.RecoveryDelay, err = config.Duration("RECOVERY_DELAY", 24*time.Hour)
	check(err)
	cfg.RecoveryInterval, err = config.Duration("RECOVERY_POLL_INTERVAL", 5*time.Second)
	check(err)
	cfg.RecoveryMaxFailures, err = config.Int("RECOVERY_MAX_FAILURES", 5)
	check(err)
	cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	check(err)
	cfg.Tracing, err = otelx.ConfigFromEnv(cfg.Service)
	check(err)

	switch cfg.Store {
	case storePostgres:
		cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
		check(err)
	case storeMemory:
	default:
		check(fmt.Errorf("BOOKING_STORE must be %q or %q (got %q)", storePostgres, storeMemory, cfg.Store))
	}

	return cfg, errors.Join(errs...)
}
