package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "lighthouse.yaml"

// Duration is a time.Duration that unmarshals from yaml strings like "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Tracker struct {
	BaseURL      string   `yaml:"base_url"`
	Token        string   `yaml:"token"`
	TeamID       string   `yaml:"team_id"`
	Tag          string   `yaml:"tag"`
	DoneStatuses []string `yaml:"done_statuses"`
	PhoneField   string   `yaml:"phone_field"`
	EmailField   string   `yaml:"email_field"`
}

// DoneSet returns the normalized done-equivalent status labels.
func (t Tracker) DoneSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.DoneStatuses))
	for _, s := range t.DoneStatuses {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

type Notify struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	PortalURL string `yaml:"portal_url"`
}

type Channel struct {
	GatewayURL        string   `yaml:"gateway_url"`
	SessionID         string   `yaml:"session_id"`
	StateDir          string   `yaml:"state_dir"`
	ReconnectInterval Duration `yaml:"reconnect_interval"`
	MaxRetries        int      `yaml:"max_retries"`
}

type Mail struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether the secondary mail channel is configured.
func (m Mail) Enabled() bool { return m.Host != "" && m.Username != "" }

type Sheets struct {
	APIKey        string `yaml:"api_key"`
	SpreadsheetID string `yaml:"spreadsheet_id"`
}

type Pipeline struct {
	Interval Duration `yaml:"interval"`
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
}

type Config struct {
	Addr        string   `yaml:"addr"`
	DBPath      string   `yaml:"db_path"`
	TokenSecret string   `yaml:"token_secret"`
	Tracker     Tracker  `yaml:"tracker"`
	Notify      Notify   `yaml:"notify"`
	Channel     Channel  `yaml:"channel"`
	Mail        Mail     `yaml:"mail"`
	Sheets      Sheets   `yaml:"sheets"`
	Pipeline    Pipeline `yaml:"pipeline"`
}

// ResolvePath returns the config file path: LIGHTHOUSE_CONFIG if set,
// otherwise ./lighthouse.yaml.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("LIGHTHOUSE_CONFIG")); v != "" {
		return v
	}
	return defaultConfigFile
}

// Load reads the yaml config at path (a missing file yields defaults),
// applies environment overrides, then fills remaining defaults.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setenv := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setenv(&c.Tracker.Token, "CLICKUP_API_TOKEN")
	setenv(&c.Tracker.TeamID, "CLICKUP_TEAM_ID")
	setenv(&c.Tracker.Tag, "CLICKUP_TAG")
	setenv(&c.Tracker.PhoneField, "CLICKUP_CUSTOM_FIELD_PHONE_NAME")
	setenv(&c.Tracker.EmailField, "CLICKUP_CUSTOM_FIELD_EMAIL_NAME")
	if v := strings.TrimSpace(os.Getenv("CLICKUP_DONE_STATUSES")); v != "" {
		c.Tracker.DoneStatuses = strings.Split(v, ",")
	}
	setenv(&c.Notify.APIKey, "GEMINI_API_KEY")
	setenv(&c.Notify.Model, "GEMINI_API_MODEL")
	setenv(&c.TokenSecret, "SECRET_KEY")
	setenv(&c.Mail.Username, "MAIL_USERNAME")
	setenv(&c.Mail.Password, "MAIL_PASSWORD")
	setenv(&c.Sheets.APIKey, "GOOGLE_API_KEY")
	setenv(&c.Sheets.SpreadsheetID, "SPREADSHEET_ID")
	setenv(&c.Channel.GatewayURL, "CHANNEL_GATEWAY_URL")
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "lighthouse.db"
	}
	if c.Tracker.BaseURL == "" {
		c.Tracker.BaseURL = "https://api.clickup.com/api/v2"
	}
	if c.Tracker.Tag == "" {
		c.Tracker.Tag = "cs"
	}
	if len(c.Tracker.DoneStatuses) == 0 {
		c.Tracker.DoneStatuses = []string{"done", "complete"}
	}
	if c.Notify.BaseURL == "" {
		c.Notify.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Channel.SessionID == "" {
		c.Channel.SessionID = "lighthouse"
	}
	if c.Channel.StateDir == "" {
		c.Channel.StateDir = "channel_state"
	}
	if c.Channel.ReconnectInterval == 0 {
		c.Channel.ReconnectInterval = Duration(5 * time.Second)
	}
	if c.Channel.MaxRetries == 0 {
		c.Channel.MaxRetries = 5
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 465
	}
	if c.Mail.Host == "" && c.Mail.Username != "" {
		c.Mail.Host = "smtp.gmail.com"
	}
	if c.Pipeline.Interval == 0 {
		c.Pipeline.Interval = Duration(time.Minute)
	}
	if c.Pipeline.MinDelay == 0 {
		c.Pipeline.MinDelay = Duration(2 * time.Second)
	}
	if c.Pipeline.MaxDelay == 0 {
		c.Pipeline.MaxDelay = Duration(5 * time.Second)
	}
}

// ValidateTracker checks the credentials a pipeline run cannot start
// without. Sync runs abort on this error before doing any work.
func (c Config) ValidateTracker() error {
	if strings.TrimSpace(c.Tracker.Token) == "" || strings.TrimSpace(c.Tracker.TeamID) == "" {
		return errors.New("tracker token and team id are required")
	}
	return nil
}
