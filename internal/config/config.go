// Package config loads and persists the application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	do "github.com/samber/do/v2"
	"gopkg.in/yaml.v3"
)

var Package = do.Package(
	do.Lazy[*Store](NewStore),
)

const (
	defaultBaseURL = "https://gitlab.com"

	envBaseURL      = "GITLAB_MR_VIEWER_BASE_URL"
	envToken        = "GITLAB_MR_VIEWER_TOKEN"
	envPollInterval = "GITLAB_MR_VIEWER_POLL_INTERVAL"
)

// Settings holds the user-editable configuration. Environment
// variables override the file on load but are never written back.
type Settings struct {
	BaseURL      string `yaml:"base_url"`
	AccessToken  string `yaml:"access_token"`
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// Configured reports whether enough is present to talk to the API.
func (s Settings) Configured() bool {
	return s.AccessToken != ""
}

// Interval parses the poll interval, returning zero when unset or
// malformed so the caller falls back to its default.
func (s Settings) Interval() time.Duration {
	if s.PollInterval == "" {
		return 0
	}

	d, err := time.ParseDuration(s.PollInterval)
	if err != nil || d <= 0 {
		return 0
	}

	return d
}

// Store owns the settings file and fans out changes to subscribers.
type Store struct {
	mu          sync.Mutex
	path        string
	settings    Settings
	subscribers []func(Settings)
}

// NewStore loads the settings from the default location (for DI).
func NewStore(_ do.Injector) (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config dir: %w", err)
	}

	return NewStoreAt(filepath.Join(dir, "gitlab-mr-viewer", "settings.yaml"))
}

// NewStoreAt loads the settings from path. A missing file is not an
// error; the store starts with defaults.
func NewStoreAt(path string) (*Store, error) {
	store := &Store{path: path}
	if err := store.load(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *Store) load() error {
	var settings Settings

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		// First run.
	default:
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if v := os.Getenv(envBaseURL); v != "" {
		settings.BaseURL = v
	}
	if v := os.Getenv(envToken); v != "" {
		settings.AccessToken = v
	}
	if v := os.Getenv(envPollInterval); v != "" {
		settings.PollInterval = v
	}

	settings.BaseURL = normalizeBaseURL(settings.BaseURL)

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	return nil
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings
}

// Update persists new settings and notifies every subscriber.
func (s *Store) Update(settings Settings) error {
	settings.BaseURL = normalizeBaseURL(settings.BaseURL)

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	// The file holds an access token; keep it private.
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.settings = settings
	subscribers := append(([]func(Settings))(nil), s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(settings)
	}

	return nil
}

// Subscribe registers fn for settings changes and invokes it once with
// the current settings, so a subscriber never has to special-case the
// initial state.
func (s *Store) Subscribe(fn func(Settings)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	settings := s.settings
	s.mu.Unlock()

	fn(settings)
}

// normalizeBaseURL applies the default host, assumes https when no
// scheme is given, and strips any trailing slash.
func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return defaultBaseURL
	}

	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}

	return strings.TrimRight(baseURL, "/")
}
