package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the rollcall service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string

	// Identity provider settings. ClientID and AuthorityURL are required
	// unless the service runs purely against a local workbook file.
	ClientID     string
	AuthorityURL string
	RedirectURL  string
	Scopes       []string

	// Remote workbook and notification channel. WorkbookPath selects the
	// offline excelize backend when set, in which case the remote settings
	// become optional.
	WorkbookID   string
	WorkbookPath string
	Team         string
	Channel      string

	PollInterval time.Duration
	SessionTTL   time.Duration

	// LocalPasswordHash enables the local email/password fallback sign-in
	// when set to an argon2id hash string.
	LocalPasswordHash string
}

// Offline reports whether the service is configured against a local workbook
// file instead of the remote spreadsheet API.
func (c Config) Offline() bool {
	return strings.TrimSpace(c.WorkbookPath) != ""
}

// Load parses configuration values from the current process environment.
//
// Optional fields receive defaults; required fields are validated and reported
// together so a misconfigured deployment fails with one actionable message.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:     8080,
		SQLiteDSN:    "file:rollcall.db?_pragma=busy_timeout(5000)",
		Scopes:       []string{"Files.ReadWrite", "ChannelMessage.Send"},
		PollInterval: 60 * time.Second,
		SessionTTL:   12 * time.Hour,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("ROLLCALL_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ROLLCALL_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("ROLLCALL_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.ClientID = strings.TrimSpace(os.Getenv("ROLLCALL_CLIENT_ID"))
	cfg.AuthorityURL = strings.TrimSpace(os.Getenv("ROLLCALL_AUTHORITY_URL"))
	cfg.RedirectURL = strings.TrimSpace(os.Getenv("ROLLCALL_REDIRECT_URL"))

	if scopes := strings.TrimSpace(os.Getenv("ROLLCALL_SCOPES")); scopes != "" {
		parts := strings.Split(scopes, ",")
		parsed := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) == 0 {
			invalid = append(invalid, "ROLLCALL_SCOPES")
		} else {
			cfg.Scopes = parsed
		}
	}

	cfg.WorkbookID = strings.TrimSpace(os.Getenv("ROLLCALL_WORKBOOK_ID"))
	cfg.WorkbookPath = strings.TrimSpace(os.Getenv("ROLLCALL_WORKBOOK_PATH"))
	cfg.Team = strings.TrimSpace(os.Getenv("ROLLCALL_TEAM"))
	cfg.Channel = strings.TrimSpace(os.Getenv("ROLLCALL_CHANNEL"))

	if intervalValue := strings.TrimSpace(os.Getenv("ROLLCALL_POLL_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "ROLLCALL_POLL_INTERVAL")
		} else {
			cfg.PollInterval = interval
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("ROLLCALL_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "ROLLCALL_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	cfg.LocalPasswordHash = strings.TrimSpace(os.Getenv("ROLLCALL_LOCAL_PASSWORD_HASH"))

	if !cfg.Offline() {
		if cfg.ClientID == "" {
			missing = append(missing, "ROLLCALL_CLIENT_ID")
		}
		if cfg.AuthorityURL == "" {
			missing = append(missing, "ROLLCALL_AUTHORITY_URL")
		}
		if cfg.WorkbookID == "" {
			missing = append(missing, "ROLLCALL_WORKBOOK_ID")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
