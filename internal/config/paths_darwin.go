//go:build darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

func defaultCacheDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Caches", "tweetlens")
	}
	return "tweetlens-cache"
}

func defaultKeysDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "tweetlens", "keys")
	}
	return "keys"
}

func apiKeyHint(account string) string {
	return fmt.Sprintf(", or macOS Keychain (service: %s, account: %s)", keychainService, account)
}
