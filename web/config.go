// ABOUTME: Server configuration loaded from PACKWB_* environment variables.
// ABOUTME: Enforces security constraint: remote access requires auth token.
package web

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Default endpoints for the batch backend and the external result viewer.
const (
	DefaultSubmitURL = "https://bda21vau5c.execute-api.us-west-2.amazonaws.com/production/start-packing"
	DefaultViewerURL = "https://simularium.allencell.org/embed?trajUrl="
)

// ConfigError represents configuration validation errors.
var (
	ErrRemoteWithoutToken = errors.New(
		"PACKWB_ALLOW_REMOTE is true but PACKWB_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"PACKWB_BIND is a non-loopback address but PACKWB_ALLOW_REMOTE is not true; set PACKWB_ALLOW_REMOTE=true and PACKWB_AUTH_TOKEN to allow remote access",
	)
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Home          string        // Data directory (PACKWB_HOME, default: ~/.packing-workbench)
	Bind          string        // Socket address (PACKWB_BIND, default: 127.0.0.1:8040)
	AllowRemote   bool          // Allow non-loopback connections (PACKWB_ALLOW_REMOTE, default: false)
	AuthToken     string        // Bearer token for API auth (PACKWB_AUTH_TOKEN, optional)
	SubmitURL     string        // Batch submission endpoint (PACKWB_SUBMIT_URL)
	ViewerURL     string        // Result viewer base URL (PACKWB_VIEWER_URL)
	SeedFile      string        // Optional YAML fixtures file loaded at startup (PACKWB_SEED)
	SweepInterval time.Duration // Retention sweep interval (PACKWB_SWEEP_INTERVAL, default: 1h)
}

// ConfigFromEnv loads configuration from PACKWB_* environment variables with
// sensible defaults.
func ConfigFromEnv() (*Config, error) {
	home := envOrDefault("PACKWB_HOME", "")
	if home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		home = filepath.Join(homeDir, ".packing-workbench")
	}

	bind := envOrDefault("PACKWB_BIND", "127.0.0.1:8040")

	allowRemote := false
	if v := os.Getenv("PACKWB_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	authToken := os.Getenv("PACKWB_AUTH_TOKEN")

	sweepInterval := time.Hour
	if v := os.Getenv("PACKWB_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse PACKWB_SWEEP_INTERVAL: %w", err)
		}
		sweepInterval = d
	}

	// Security: remote access requires auth token
	if allowRemote && authToken == "" {
		return nil, ErrRemoteWithoutToken
	}

	// Security: refuse non-loopback binds unless explicitly opting into remote
	// access. Checks both IP literals and hostnames; only 127.0.0.0/8, ::1,
	// and "localhost" are considered safe.
	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
				// Safe: 127.x.x.x or ::1
			case ip != nil:
				return nil, fmt.Errorf("%w: PACKWB_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
				// Safe: conventional loopback hostname
			default:
				return nil, fmt.Errorf("%w: PACKWB_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return &Config{
		Home:          home,
		Bind:          bind,
		AllowRemote:   allowRemote,
		AuthToken:     authToken,
		SubmitURL:     envOrDefault("PACKWB_SUBMIT_URL", DefaultSubmitURL),
		ViewerURL:     envOrDefault("PACKWB_VIEWER_URL", DefaultViewerURL),
		SeedFile:      os.Getenv("PACKWB_SEED"),
		SweepInterval: sweepInterval,
	}, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
