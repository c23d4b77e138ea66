package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TimeControl is a base/increment pair offered by matchmaking.
type TimeControl struct {
	Minutes   int
	Increment int
}

func (tc TimeControl) String() string {
	return fmt.Sprintf("%d+%d", tc.Minutes, tc.Increment)
}

// ParseTimeControl reads "10+0" or "5+3". A bare "10" means no increment.
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.TrimSpace(s)
	base, inc, _ := strings.Cut(s, "+")
	m, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil || m < 0 {
		return TimeControl{}, fmt.Errorf("invalid time control %q", s)
	}
	tc := TimeControl{Minutes: m}
	if strings.TrimSpace(inc) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(inc))
		if err != nil || n < 0 {
			return TimeControl{}, fmt.Errorf("invalid increment in %q", s)
		}
		tc.Increment = n
	}
	if tc.Minutes == 0 && tc.Increment == 0 {
		return TimeControl{}, fmt.Errorf("time control %q has no time", s)
	}
	return tc, nil
}

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	NotifyWebhookURL   string
	NotifyWebhookToken string

	MessagesDir    string
	MessagesLocale string

	AllowedTimeControls []TimeControl
	RatedMatchmaking    bool

	TicketTTL     time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Allows reports whether matchmaking accepts the given base/increment.
func (c *AppConfig) Allows(minutes, increment int) bool {
	for _, tc := range c.AllowedTimeControls {
		if tc.Minutes == minutes && tc.Increment == increment {
			return true
		}
	}
	return false
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		MessagesLocale:   "en",
		RatedMatchmaking: true,
		TicketTTL:        10 * time.Minute,
		SessionTTL:       24 * time.Hour,
		SweepInterval:    time.Second,
		AllowedTimeControls: []TimeControl{
			{Minutes: 1, Increment: 0},
			{Minutes: 3, Increment: 2},
			{Minutes: 5, Increment: 0},
			{Minutes: 10, Increment: 0},
			{Minutes: 15, Increment: 10},
		},
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.NotifyWebhookURL = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))
	cfg.NotifyWebhookToken = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_TOKEN"))

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("MESSAGES_LOCALE")); v != "" {
		cfg.MessagesLocale = v
	}

	if v := strings.TrimSpace(os.Getenv("ALLOWED_TIME_CONTROLS")); v != "" {
		var list []TimeControl
		for _, p := range strings.Split(v, ",") {
			s := strings.TrimSpace(p)
			if s == "" {
				continue
			}
			tc, err := ParseTimeControl(s)
			if err != nil {
				return nil, fmt.Errorf("ALLOWED_TIME_CONTROLS: %w", err)
			}
			list = append(list, tc)
		}
		if len(list) > 0 {
			cfg.AllowedTimeControls = list
		}
	}

	if v := strings.TrimSpace(os.Getenv("RATED_MATCHMAKING")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.RatedMatchmaking = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCHMAKING_TICKET_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TicketTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("TIMEOUT_SWEEP_INTERVAL_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepInterval = time.Duration(n) * time.Millisecond
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
