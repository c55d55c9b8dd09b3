package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/codeintel/internal/merge"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/spf13/viper"
)

const appName = "codeintel"

// Setting keys.
const (
	KeyWaitForMS             = "wait_for_ms"
	KeyMaxRestartAttempts    = "max_restart_attempts"
	KeyTimeBetweenRestartsMS = "time_between_restarts_ms"
	KeyTimeHeartbeatMS       = "time_heartbeat_ms"
	KeyMaxLiveRequests       = "max_live_requests"
	KeyLogLevel              = "log.level"
	KeyStateDir              = "state_dir"
	KeyPriority              = "priority"
	KeyWaitFor               = "wait_for"
)

// Defaults for process settings.
const (
	DefaultWaitForMS             = 300
	DefaultMaxRestartAttempts    = 5
	DefaultTimeBetweenRestartsMS = 10000
	DefaultTimeHeartbeatMS       = 3000
	DefaultMaxLiveRequests       = 10000
	DefaultLogLevel              = "info"
)

// Settings are the process-wide knobs read at startup.
type Settings struct {
	WaitForMS             int                 `mapstructure:"wait_for_ms"`
	MaxRestartAttempts    int                 `mapstructure:"max_restart_attempts"`
	TimeBetweenRestartsMS int                 `mapstructure:"time_between_restarts_ms"`
	TimeHeartbeatMS       int                 `mapstructure:"time_heartbeat_ms"`
	MaxLiveRequests       int                 `mapstructure:"max_live_requests"`
	StateDir              string              `mapstructure:"state_dir"`
	Log                   LogSettings         `mapstructure:"log"`
	Priority              map[string][]string `mapstructure:"priority"`
	WaitFor               map[string][]string `mapstructure:"wait_for"`

	// File is the settings file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DefaultWaitFor returns the authoritative providers per request kind.
func DefaultWaitFor() map[string][]string {
	out := make(map[string][]string, len(provider.RequestKinds))
	for _, k := range provider.RequestKinds {
		switch k {
		case provider.KindCompletion, provider.KindSignatureHelp, provider.KindHover:
			out[string(k)] = []string{merge.ProviderLSP, merge.ProviderEngine}
		default:
			out[string(k)] = []string{merge.ProviderLSP}
		}
	}
	return out
}

// DefaultPriority returns the merge priority order per request kind.
func DefaultPriority() map[string][]string {
	out := make(map[string][]string, len(provider.RequestKinds))
	for _, k := range provider.RequestKinds {
		out[string(k)] = append([]string(nil), merge.DefaultOrder...)
	}
	return out
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		WaitForMS:             DefaultWaitForMS,
		MaxRestartAttempts:    DefaultMaxRestartAttempts,
		TimeBetweenRestartsMS: DefaultTimeBetweenRestartsMS,
		TimeHeartbeatMS:       DefaultTimeHeartbeatMS,
		MaxLiveRequests:       DefaultMaxLiveRequests,
		StateDir:              defaultStateDir(),
		Log:                   LogSettings{Level: DefaultLogLevel},
		Priority:              DefaultPriority(),
		WaitFor:               DefaultWaitFor(),
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(".", "."+appName)
}

// NewViper returns a viper instance configured with the search paths,
// environment binding and defaults for codeintel settings. When file is
// non-empty only that file is read.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("toml")
		v.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultSettings()
	v.SetDefault(KeyWaitForMS, def.WaitForMS)
	v.SetDefault(KeyMaxRestartAttempts, def.MaxRestartAttempts)
	v.SetDefault(KeyTimeBetweenRestartsMS, def.TimeBetweenRestartsMS)
	v.SetDefault(KeyTimeHeartbeatMS, def.TimeHeartbeatMS)
	v.SetDefault(KeyMaxLiveRequests, def.MaxLiveRequests)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyStateDir, def.StateDir)
	for kind, order := range def.Priority {
		v.SetDefault(KeyPriority+"."+kind, order)
	}
	for kind, names := range def.WaitFor {
		v.SetDefault(KeyWaitFor+"."+kind, names)
	}
	return v
}

// IsZero reports whether s is the zero value, as opposed to settings that
// were read and may legitimately hold zeros.
func (s Settings) IsZero() bool {
	return s.WaitForMS == 0 && s.MaxRestartAttempts == 0 && s.TimeBetweenRestartsMS == 0 &&
		s.TimeHeartbeatMS == 0 && s.MaxLiveRequests == 0 && s.StateDir == "" &&
		s.Log == (LogSettings{}) && len(s.Priority) == 0 && len(s.WaitFor) == 0 && s.File == ""
}

// LoadSettings reads settings through v. A missing settings file is not an
// error; defaults and environment apply.
func LoadSettings(v *viper.Viper) (Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("reading settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	s.File = v.ConfigFileUsed()
	s.Normalize()
	return s, nil
}

// Normalize clamps out-of-range values. A negative wait means "no wait";
// non-positive attempts and intervals fall back to the defaults.
func (s *Settings) Normalize() {
	if s.WaitForMS < 0 {
		s.WaitForMS = 0
	}
	if s.MaxRestartAttempts <= 0 {
		s.MaxRestartAttempts = DefaultMaxRestartAttempts
	}
	if s.TimeBetweenRestartsMS <= 0 {
		s.TimeBetweenRestartsMS = DefaultTimeBetweenRestartsMS
	}
	if s.TimeHeartbeatMS <= 0 {
		s.TimeHeartbeatMS = DefaultTimeHeartbeatMS
	}
	if s.MaxLiveRequests <= 0 {
		s.MaxLiveRequests = DefaultMaxLiveRequests
	}
	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	if s.StateDir == "" {
		s.StateDir = defaultStateDir()
	}
	s.Priority = fillKinds(s.Priority, DefaultPriority())
	s.WaitFor = fillKinds(s.WaitFor, DefaultWaitFor())
}

func fillKinds(m, defaults map[string][]string) map[string][]string {
	out := make(map[string][]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// WaitForDuration returns the per-request time budget.
func (s Settings) WaitForDuration() time.Duration {
	return time.Duration(s.WaitForMS) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat period.
func (s Settings) HeartbeatInterval() time.Duration {
	return time.Duration(s.TimeHeartbeatMS) * time.Millisecond
}

// RestartInterval returns the delay between restart attempts.
func (s Settings) RestartInterval() time.Duration {
	return time.Duration(s.TimeBetweenRestartsMS) * time.Millisecond
}

// StorePath returns the provider configuration store location.
func (s Settings) StorePath() string {
	return filepath.Join(s.StateDir, StoreFileName)
}
