package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"calmsession/internal/domain"
)

// Normalize fills unset values with defaults and rejects invalid ones.
func Normalize(cfg Config) (Config, error) {
	def := DefaultConfig()
	if cfg.DBPath == "" {
		cfg.DBPath = def.DBPath
	}
	if cfg.Ads.UnitID == "" {
		cfg.Ads.UnitID = def.Ads.UnitID
	}
	if cfg.Playback.Tick <= 0 {
		cfg.Playback.Tick = def.Playback.Tick
	}
	if cfg.Playback.MediaLength <= 0 {
		cfg.Playback.MediaLength = def.Playback.MediaLength
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = def.Serve.Addr
	}
	if cfg.Breathing.Mood == "" {
		cfg.Breathing.Mood = def.Breathing.Mood
	}

	if cfg.Ads.Latency < 0 || cfg.Ads.ShowTime < 0 || cfg.Ads.Wait < 0 {
		return cfg, fmt.Errorf("ads durations must not be negative")
	}
	if !unit(cfg.Ads.FillRate) || !unit(cfg.Ads.RewardRate) {
		return cfg, fmt.Errorf("ads rates must be between 0 and 1")
	}
	if cfg.Playback.Tick < 10*time.Millisecond {
		return cfg, fmt.Errorf("playback tick must be >=10ms")
	}
	if cfg.Playback.SleepEpsilon < 0 || cfg.Playback.SleepEpsilon >= time.Second {
		return cfg, fmt.Errorf("sleep epsilon must be in [0, 1s)")
	}
	if !unit(cfg.Playback.VoiceVolume) || !unit(cfg.Playback.AmbientVolume) {
		return cfg, domain.ErrInvalidVolume
	}
	mood, err := domain.ParseMood(cfg.Breathing.Mood)
	if err != nil {
		return cfg, err
	}
	cfg.Breathing.Mood = string(mood)
	if cfg.Breathing.Duration < time.Second {
		return cfg, domain.ErrInvalidDuration
	}
	if cfg.Breathing.Countdown < 0 || cfg.Breathing.Countdown > 60 {
		return cfg, fmt.Errorf("breathing countdown must be 0-60 seconds")
	}
	return cfg, nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

// Keys lists the settable configuration keys in display order.
func Keys() []string {
	return []string{
		"db_path", "premium",
		"ads.unit_id", "ads.latency", "ads.show_time", "ads.fill_rate", "ads.reward_rate", "ads.wait",
		"playback.tick", "playback.sleep_epsilon", "playback.voice_volume", "playback.ambient_volume", "playback.media_length",
		"breathing.mood", "breathing.duration", "breathing.countdown",
		"serve.addr",
	}
}

// Set parses value into the field named by key.
func Set(cfg *Config, key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "db_path":
		cfg.DBPath = value
	case "premium":
		cfg.Premium, err = strconv.ParseBool(value)
	case "ads.unit_id":
		cfg.Ads.UnitID = value
	case "ads.latency":
		cfg.Ads.Latency, err = time.ParseDuration(value)
	case "ads.show_time":
		cfg.Ads.ShowTime, err = time.ParseDuration(value)
	case "ads.fill_rate":
		cfg.Ads.FillRate, err = strconv.ParseFloat(value, 64)
	case "ads.reward_rate":
		cfg.Ads.RewardRate, err = strconv.ParseFloat(value, 64)
	case "ads.wait":
		cfg.Ads.Wait, err = time.ParseDuration(value)
	case "playback.tick":
		cfg.Playback.Tick, err = time.ParseDuration(value)
	case "playback.sleep_epsilon":
		cfg.Playback.SleepEpsilon, err = time.ParseDuration(value)
	case "playback.voice_volume":
		cfg.Playback.VoiceVolume, err = strconv.ParseFloat(value, 64)
	case "playback.ambient_volume":
		cfg.Playback.AmbientVolume, err = strconv.ParseFloat(value, 64)
	case "playback.media_length":
		cfg.Playback.MediaLength, err = time.ParseDuration(value)
	case "breathing.mood":
		cfg.Breathing.Mood = value
	case "breathing.duration":
		cfg.Breathing.Duration, err = time.ParseDuration(value)
	case "breathing.countdown":
		cfg.Breathing.Countdown, err = strconv.Atoi(value)
	case "serve.addr":
		cfg.Serve.Addr = value
	default:
		return fmt.Errorf("unknown key %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
