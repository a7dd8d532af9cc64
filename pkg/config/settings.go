package config

import (
	"maps"
	"strconv"
	"strings"
)

// Settings is the opaque key/value dictionary handed to capture backends.
// Backends parse it into typed settings once, during initialization.
type Settings map[string]string

// Clone returns an independent copy
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

// Set stores a value
func (s Settings) Set(key, value string) {
	s[key] = value
}

// Import copies every entry of other into s
func (s Settings) Import(other map[string]string) {
	for k, v := range other {
		s[k] = v
	}
}

// String returns the value for key and whether it was present
func (s Settings) String(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// StringOr returns the value for key or def when absent
func (s Settings) StringOr(key, def string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// Uint parses the value for key. ok is false when the key is absent;
// err is set when it is present but not a non-negative integer.
func (s Settings) Uint(key string) (v uint32, ok bool, err error) {
	raw, ok := s[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, true, err
	}
	return uint32(n), true, nil
}

// Flag reports whether key is set to 1, yes or true (any case)
func (s Settings) Flag(key string) bool {
	v, ok := s[key]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true":
		return true
	}
	return false
}
