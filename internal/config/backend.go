package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigBackend abstracts config storage. Keys are dotted paths such as
// "gemini.model"; the first segment names a TOML table.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// tomlBackend stores config in a TOML file at an XDG-compatible path.
type tomlBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() ConfigBackend {
	b, err := openTOMLBackend(configFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] %v. Using default values.\n", err)
		return &tomlBackend{path: configFilePath(), data: make(map[string]any)}
	}
	return b
}

// ConfigFilePath returns where the config file is read from and written to.
func ConfigFilePath() string { return configFilePath() }

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "tweetlens", "config.toml")
}

func openTOMLBackend(path string) (*tomlBackend, error) {
	b := &tomlBackend{path: path, data: make(map[string]any)}
	if _, err := toml.DecodeFile(path, &b.data); err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return b, nil
}

func (b *tomlBackend) save() error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(b.data); err != nil {
		f.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	return f.Close()
}

// lookup walks the dotted key through nested tables.
func (b *tomlBackend) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = b.data
	for _, p := range parts {
		table, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = table[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// table returns the parent table for key, creating it when create is set.
func (b *tomlBackend) table(key string, create bool) (map[string]any, string) {
	parts := strings.Split(key, ".")
	cur := b.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			if !create {
				return nil, ""
			}
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	return cur, parts[len(parts)-1]
}

func (b *tomlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (b *tomlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (b *tomlBackend) SetString(key, val string) error {
	t, leaf := b.table(key, true)
	t[leaf] = val
	return b.save()
}

func (b *tomlBackend) SetInt(key string, val int) error {
	t, leaf := b.table(key, true)
	t[leaf] = int64(val)
	return b.save()
}

func (b *tomlBackend) Delete(key string) error {
	t, leaf := b.table(key, false)
	if t == nil {
		return nil
	}
	delete(t, leaf)
	return b.save()
}
