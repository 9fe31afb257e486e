package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string
	EventsAddr string

	RedisURL    string
	DatabaseURL string // optional, enables the archive

	Stake      uint64 // per-player stake, milliunits
	Fee        uint64 // protocol fee per settled pool
	TreasuryID string

	JoinTimeout time.Duration
	MoveTimeout time.Duration

	BoardFile string // optional override for the embedded board catalog

	// watcherd
	RefereeBaseURL string
	WatchInterval  time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":8080",
		EventsAddr:    ":8081",
		Stake:         10,
		Fee:           1,
		TreasuryID:    "treasury",
		JoinTimeout:   time.Hour,
		MoveTimeout:   10 * time.Minute,
		WatchInterval: 30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("EVENTS_ADDR")); v != "" {
		cfg.EventsAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("STAKE")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return nil, errors.New("STAKE must be a positive integer (milliunits)")
		}
		cfg.Stake = n
	}
	if v := strings.TrimSpace(os.Getenv("PROTOCOL_FEE")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.New("PROTOCOL_FEE must be a non-negative integer (milliunits)")
		}
		cfg.Fee = n
	}
	if v := strings.TrimSpace(os.Getenv("TREASURY_ID")); v != "" {
		cfg.TreasuryID = v
	}
	if v := strings.TrimSpace(os.Getenv("JOIN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("JOIN_TIMEOUT must be a positive duration")
		}
		cfg.JoinTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("MOVE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("MOVE_TIMEOUT must be a positive duration")
		}
		cfg.MoveTimeout = d
	}
	cfg.BoardFile = strings.TrimSpace(os.Getenv("BOARD_FILE"))

	cfg.RefereeBaseURL = strings.TrimSpace(os.Getenv("REFEREE_BASE_URL"))
	if v := strings.TrimSpace(os.Getenv("WATCH_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("WATCH_INTERVAL must be a positive duration")
		}
		cfg.WatchInterval = d
	}

	if cfg.Fee > 2*cfg.Stake {
		return nil, errors.New("PROTOCOL_FEE cannot exceed the session pool")
	}

	return cfg, nil
}
