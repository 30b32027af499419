// Package config loads the triage service settings.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	libconfig "github.com/md-rashed-zaman/notifytriage/libs/config"
	"github.com/md-rashed-zaman/notifytriage/libs/kafkax"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/appointments"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/email"
	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

const ServiceName = "triage-service"

const defaultReportBody = "<p>Vedhæftet er den manuelle liste over ikke meddelte aftaler for perioden.</p>"

type Config struct {
	LogLevel string

	DatabaseURL string
	MaxConns    int

	RedisURL string
	LockTTL  time.Duration

	KafkaBrokers []string
	IngestTopic  string
	IngestGroup  string

	BridgeURL     string
	BridgeToken   string
	BridgeTimeout time.Duration
	Location      *time.Location
	Selector      appointments.Selector

	SMTP             email.SMTPConfig
	ReportRecipients []string
	ReportBody       string
	TempDir          string

	PeriodStart time.Time
	PeriodEnd   time.Time
	HasPeriod   bool

	PushgatewayURL   string
	PreflightTimeout time.Duration
}

// Load reads every setting from src. Only DATABASE_URL is required here;
// commands that drive the clinic application call RequireBridge.
func Load(src *libconfig.Source) (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.LogLevel = src.String("LOG_LEVEL", "info")

	if cfg.DatabaseURL, err = src.RequiredString("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.MaxConns, err = src.Int("DB_MAX_CONNS", 4); err != nil {
		return Config{}, err
	}

	cfg.RedisURL = src.String("REDIS_URL", "")
	if cfg.LockTTL, err = src.Duration("TRIAGE_LOCK_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}

	cfg.KafkaBrokers = kafkax.SplitBrokers(src.String("KAFKA_BROKERS", ""))
	cfg.IngestTopic = src.String("KAFKA_INGEST_TOPIC", "triage.item.requested.v1")
	cfg.IngestGroup = src.String("KAFKA_INGEST_GROUP", ServiceName)

	cfg.BridgeURL = src.String("CLINIC_BRIDGE_URL", "")
	cfg.BridgeToken = src.String("CLINIC_BRIDGE_TOKEN", "")
	if cfg.BridgeTimeout, err = src.Duration("CLINIC_BRIDGE_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	tz := src.String("CLINIC_TIMEZONE", "Europe/Copenhagen")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return Config{}, fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}
	cfg.Selector = appointments.DefaultSelector()
	cfg.Selector.ClinicCode = src.String("CLINIC_CODE", appointments.DefaultClinicCode)

	if cfg.SMTP.Port, err = src.Port("SMTP_PORT", "25"); err != nil {
		return Config{}, err
	}
	cfg.SMTP.Host = src.String("SMTP_HOST", "localhost")
	cfg.SMTP.From = src.String("SMTP_FROM", "")
	cfg.SMTP.Username = src.String("SMTP_USERNAME", "")
	cfg.SMTP.Password = src.String("SMTP_PASSWORD", "")
	cfg.ReportRecipients = email.SplitRecipients(src.String("TRIAGE_REPORT_RECIPIENT", ""))
	cfg.ReportBody = src.String("TRIAGE_REPORT_BODY", defaultReportBody)
	cfg.TempDir = src.String("TRIAGE_TMP_DIR", "tmp")

	start, hasStart, err := src.Date("TRIAGE_PERIOD_START", cfg.Location)
	if err != nil {
		return Config{}, err
	}
	end, hasEnd, err := src.Date("TRIAGE_PERIOD_END", cfg.Location)
	if err != nil {
		return Config{}, err
	}
	if hasStart != hasEnd {
		return Config{}, fmt.Errorf("TRIAGE_PERIOD_START and TRIAGE_PERIOD_END must be set together")
	}
	if hasStart {
		if _, err := model.NewPeriodWindow(start, end); err != nil {
			return Config{}, err
		}
		cfg.PeriodStart, cfg.PeriodEnd, cfg.HasPeriod = start, end, true
	}

	cfg.PushgatewayURL = src.String("PUSHGATEWAY_URL", "")
	if cfg.PreflightTimeout, err = src.Duration("PREFLIGHT_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) RequireBridge() error {
	if c.BridgeURL == "" {
		return fmt.Errorf("CLINIC_BRIDGE_URL is required")
	}
	return nil
}

// Period is the reporting window: the configured override, or the calendar
// month containing now.
func (c Config) Period(now time.Time) model.PeriodWindow {
	if c.HasPeriod {
		return model.PeriodWindow{Start: c.PeriodStart, End: c.PeriodEnd}
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return model.MonthOf(now.In(loc))
}
