// Package config reads service settings from the environment and an optional
// .env file. Environment variables win over the file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Source struct {
	v *viper.Viper
}

// New builds a Source. envFile may be empty; a missing file is not an error.
func New(envFile string) *Source {
	v := viper.New()
	v.AutomaticEnv()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}
	return &Source{v: v}
}

func (s *Source) String(key, fallback string) string {
	v := strings.TrimSpace(s.v.GetString(key))
	if v == "" {
		return fallback
	}
	return v
}

func (s *Source) RequiredString(key string) (string, error) {
	v := s.String(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func (s *Source) Int(key string, fallback int) (int, error) {
	raw := s.String(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, raw)
	}
	return n, nil
}

func (s *Source) Bool(key string, fallback bool) (bool, error) {
	raw := s.String(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", key, raw)
	}
	return b, nil
}

func (s *Source) Duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := s.String(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration (got %q)", key, raw)
	}
	return d, nil
}

// Date parses a YYYY-MM-DD value in loc. ok is false when the key is unset.
func (s *Source) Date(key string, loc *time.Location) (t time.Time, ok bool, err error) {
	raw := s.String(key, "")
	if raw == "" {
		return time.Time{}, false, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err = time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s must be a date YYYY-MM-DD (got %q)", key, raw)
	}
	return t, true, nil
}

func (s *Source) Port(key, fallback string) (string, error) {
	v := s.String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}
