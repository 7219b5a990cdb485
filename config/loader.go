package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of every supported environment variable.
const EnvPrefix = "WEBTERM_"

// ConfigFileFromEnv returns WEBTERM_CONFIG, the config file path used
// when --config is not given.
func ConfigFileFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// variables override the existing value.  Booleans accept "1", "true"
// and "yes" (case-insensitive); durations accept Go syntax ("1m30s") or
// a plain number of seconds.
func LoadFromEnv(cfg *Config) {
	// Connect target
	if v := env("URL"); v != "" {
		cfg.URL = v
	}
	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("TARGET_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := env("PATH"); v != "" {
		cfg.Path = v
	}
	if envBool("SECURE") {
		cfg.Secure = true
	}

	// Listen mode
	if envBool("LISTEN") {
		cfg.Listen = true
	}
	if v := envInt("PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if v := env("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if envBool("KEEP_OPEN") {
		cfg.KeepOpen = true
	}

	// Session
	if v := envDuration("TIMEOUT"); v > 0 {
		cfg.Timeout = v
	}
	if v := envInt("RETRIES"); v > 0 {
		cfg.Retries = v
	}
	if v := envDuration("REPLY_TIMEOUT"); v > 0 {
		cfg.ReplyTimeout = v
	}
	if v := env("GREETING"); v != "" {
		cfg.Greeting = v
	}
	if envBool("STATS") {
		cfg.Stats = true
	}

	// Executor
	if v := env("SHELL"); v != "" {
		cfg.Shell = v
	}
	if envBool("ECHO") {
		cfg.Echo = true
	}
	if v := envDuration("COMMAND_TIMEOUT"); v > 0 {
		cfg.CommandTimeout = v
	}

	// SSH
	if v := env("TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := env("REVERSE_TUNNEL"); v != "" {
		cfg.ReverseSpec = v
	}
	if v := envInt("REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := env("REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envDuration("KEEP_ALIVE"); v > 0 {
		cfg.KeepAliveInterval = v
	}

	// Output
	if v := envInt("VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func envInt(key string) int {
	n, err := strconv.Atoi(env(key))
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := env(key)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
