package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// HebcalSettings configures the upstream conversion client.
type HebcalSettings struct {
	BaseURL  string        `yaml:"base_url"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxTries uint          `yaml:"max_tries"`
	// Concurrency bounds the projector fan-out.
	Concurrency int `yaml:"concurrency"`
}

// RefreshLimitSettings describes the sliding window applied to on-demand refreshes.
type RefreshLimitSettings struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// AuthSettings holds the bearer-token verification secret.
// When Secret is empty the secret is read from the environment, then from the OS keyring.
type AuthSettings struct {
	Secret      string `yaml:"secret,omitempty"`
	KeyringUser string `yaml:"keyring_user,omitempty"`
}

// CalendarSettings controls the iCalendar feed.
type CalendarSettings struct {
	// Reminder is an ISO-8601 duration (e.g. "-P1D"). Empty disables alarms.
	Reminder string `yaml:"reminder,omitempty"`
	Language string `yaml:"language"`
}

// Settings is the top-level service configuration.
type Settings struct {
	Listen       string               `yaml:"listen"`
	Database     string               `yaml:"database"`
	Timezone     string               `yaml:"timezone"`
	SweepCron    string               `yaml:"sweep_cron"`
	HorizonYears int                  `yaml:"horizon_years"`
	Hebcal       HebcalSettings       `yaml:"hebcal"`
	RefreshLimit RefreshLimitSettings `yaml:"refresh_limit"`
	Auth         AuthSettings         `yaml:"auth"`
	Calendar     CalendarSettings     `yaml:"calendar"`
}

// DefaultSettings returns an in-memory default configuration.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.Normalize()
	return s
}

// Normalize fills in missing or zero values so that partially filled files still behave.
func (s *Settings) Normalize() {
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	if s.Database == "" {
		s.Database = DefaultDatabasePath
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if s.SweepCron == "" {
		s.SweepCron = DefaultSweepCron
	}
	if s.HorizonYears <= 0 {
		s.HorizonYears = DefaultHorizonYears
	}

	if s.Hebcal.BaseURL == "" {
		s.Hebcal.BaseURL = DefaultHebcalURL
	}
	if s.Hebcal.Language == "" {
		s.Hebcal.Language = DefaultHebcalLanguage
	}
	if s.Hebcal.Timeout <= 0 {
		s.Hebcal.Timeout = DefaultHebcalTimeout
	}
	if s.Hebcal.MaxTries == 0 {
		s.Hebcal.MaxTries = DefaultHebcalMaxTries
	}
	if s.Hebcal.Concurrency <= 0 {
		s.Hebcal.Concurrency = DefaultHebcalConcurrency
	}

	if s.RefreshLimit.MaxRequests <= 0 {
		s.RefreshLimit.MaxRequests = DefaultRefreshMaxRequests
	}
	if s.RefreshLimit.Window <= 0 {
		s.RefreshLimit.Window = DefaultRefreshWindow
	}

	switch s.Calendar.Language {
	case "en", "he":
	default:
		s.Calendar.Language = DefaultLanguage
	}
}

// Location resolves the configured timezone used for day boundaries.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", ErrConfigTimezone, s.Timezone, err)
	}
	return loc, nil
}

// Load reads settings from the given YAML path.
// A missing file is created with defaults (0600) and the defaults are returned.
func Load(path string) (*Settings, error) {
	if path == "" {
		return nil, errors.New(ErrConfigPathEmpty)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s := DefaultSettings()
			if err := Save(path, s); err != nil {
				return s, err
			}
			return s, nil
		}
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.Normalize()

	return &s, nil
}

// Save writes the settings atomically (temp file + rename) with owner-only permissions.
func Save(path string, s *Settings) error {
	if path == "" {
		return errors.New(ErrConfigPathEmpty)
	}
	if s == nil {
		return errors.New(ErrConfigNil)
	}

	s.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermUserRWX); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hebday-settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, FilePermUserRW); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
