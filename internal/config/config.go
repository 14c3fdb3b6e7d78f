// Package config implements the satellite's configuration map: a
// map[string]any wrapper that tracks which keys have been read so a
// satellite can report ignored/unused values back to its controller.
package config

import (
	"strings"
	"sync"
)

// Config is a key-value configuration map with used-key tracking. Every
// successful Get* call marks the key as used; UnusedKeys reports the
// complement after a device-specific do_initializing/do_reconfigure hook
// has run.
type Config struct {
	mu     sync.Mutex
	values map[string]any
	used   map[string]bool
}

// New wraps values in a Config. Keys are lower-cased to match the wire
// convention (controllers may send configuration keys in any case).
func New(values map[string]any) *Config {
	c := &Config{values: map[string]any{}, used: map[string]bool{}}
	for k, v := range values {
		c.values[strings.ToLower(k)] = v
	}
	return c
}

// Has reports whether key is present, without marking it used.
func (c *Config) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[strings.ToLower(key)]
	return ok
}

// Get returns the raw value for key and marks it used.
func (c *Config) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key = strings.ToLower(key)
	v, ok := c.values[key]
	if ok {
		c.used[key] = true
	}
	return v, ok
}

// GetString returns key as a string, marking it used. ok is false if the
// key is absent or not a string.
func (c *Config) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns key as an int, accepting any numeric msgpack-decoded type
// and marking the key used.
func (c *Config) GetInt(key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// GetFloat returns key as a float64, marking the key used.
func (c *Config) GetFloat(key string) (float64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool returns key as a bool, marking the key used.
func (c *Config) GetBool(key string) (bool, bool) {
	v, ok := c.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// HasUnusedValues reports whether any key has never been read via Get*.
func (c *Config) HasUnusedValues() bool {
	return len(c.UnusedKeys()) > 0
}

// UnusedKeys returns the keys that have never been read via Get*, in no
// particular order.
func (c *Config) UnusedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k := range c.values {
		if !c.used[k] {
			out = append(out, k)
		}
	}
	return out
}

// Update merges other into c. Keys present in other replace the existing
// value and are marked unused again, so a controller can choose to either
// "update only unused" (reconfigure with a partial map) or "update
// everything" (reconfigure with the full map) depending on what it sends.
func (c *Config) Update(other map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range other {
		k = strings.ToLower(k)
		c.values[k] = v
		delete(c.used, k)
	}
}
