package config

import (
	"os"
	"path/filepath"
)

const appDir = "calmsession"

// DefaultPath returns ~/.config/calmsession/config.yaml (or a cwd fallback).
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

// DefaultDBPath returns ~/.config/calmsession/history.db (or a cwd fallback).
func DefaultDBPath() string {
	return filepath.Join(baseDir(), "history.db")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", appDir)
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "."+appDir)
}
