package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds user preferences shared by the CLI, the shell and the web server.
type Config struct {
	DBPath    string          `yaml:"db_path" env:"DB_PATH"`
	Premium   bool            `yaml:"premium" env:"PREMIUM"`
	Ads       AdsConfig       `yaml:"ads" envPrefix:"ADS_"`
	Playback  PlaybackConfig  `yaml:"playback" envPrefix:"PLAYBACK_"`
	Breathing BreathingConfig `yaml:"breathing" envPrefix:"BREATHING_"`
	Serve     ServeConfig     `yaml:"serve" envPrefix:"SERVE_"`
}

// AdsConfig configures the rewarded ad unit and the simulated network.
type AdsConfig struct {
	UnitID     string        `yaml:"unit_id" env:"UNIT_ID"`
	Latency    time.Duration `yaml:"latency" env:"LATENCY"`
	ShowTime   time.Duration `yaml:"show_time" env:"SHOW_TIME"`
	FillRate   float64       `yaml:"fill_rate" env:"FILL_RATE"`
	RewardRate float64       `yaml:"reward_rate" env:"REWARD_RATE"`
	// Wait bounds how long a gated launch waits for inventory.
	Wait time.Duration `yaml:"wait" env:"WAIT"`
}

// PlaybackConfig tunes the playback synchronizer and sleep timer.
type PlaybackConfig struct {
	Tick          time.Duration `yaml:"tick" env:"TICK"`
	SleepEpsilon  time.Duration `yaml:"sleep_epsilon" env:"SLEEP_EPSILON"`
	VoiceVolume   float64       `yaml:"voice_volume" env:"VOICE_VOLUME"`
	AmbientVolume float64       `yaml:"ambient_volume" env:"AMBIENT_VOLUME"`
	// MediaLength is the stream length assumed when a URL carries no duration.
	MediaLength time.Duration `yaml:"media_length" env:"MEDIA_LENGTH"`
}

// BreathingConfig holds defaults for the breathe command.
type BreathingConfig struct {
	Mood     string        `yaml:"mood" env:"MOOD"`
	Duration time.Duration `yaml:"duration" env:"DURATION"`
	// Countdown is the number of seconds shown before the first inhale.
	Countdown int `yaml:"countdown" env:"COUNTDOWN"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// DefaultConfig returns the initial configuration.
func DefaultConfig() Config {
	return Config{
		DBPath: DefaultDBPath(),
		Ads: AdsConfig{
			UnitID:     "rewarded-session-start",
			Latency:    time.Second,
			ShowTime:   5 * time.Second,
			FillRate:   0.9,
			RewardRate: 0.8,
			Wait:       5 * time.Second,
		},
		Playback: PlaybackConfig{
			Tick:          200 * time.Millisecond,
			SleepEpsilon:  250 * time.Millisecond,
			VoiceVolume:   1,
			AmbientVolume: 0.5,
			MediaLength:   10 * time.Minute,
		},
		Breathing: BreathingConfig{
			Mood:      "calm",
			Duration:  2 * time.Minute,
			Countdown: 3,
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:7070",
		},
	}
}

// Store persists configuration so the CLI and the web server share it.
type Store interface {
	Load() (Config, error)
	Save(Config) error
}

// FileStore implements Store using a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store under the supplied path. Parent directories are created automatically.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Load reads the configuration file or returns defaults if it does not exist.
// Keys missing from the file keep their default values.
func (s *FileStore) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := DefaultConfig()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to disk atomically.
func (s *FileStore) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// Resolve loads the file, applies environment overrides and normalizes.
// This is the configuration commands run with.
func Resolve(store Store) (Config, error) {
	cfg, err := store.Load()
	if err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return Normalize(cfg)
}
