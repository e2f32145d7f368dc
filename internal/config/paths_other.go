//go:build !darwin

package config

import (
	"os"
	"path/filepath"
)

func xdgDir(env, fallback string) string {
	dir := os.Getenv(env)
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, fallback)
		} else {
			return "."
		}
	}
	return filepath.Join(dir, "tweetlens")
}

func defaultCacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

func defaultKeysDir() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "keys")
}

func apiKeyHint(account string) string {
	return ", or run: tweetlens config set-secret"
}
