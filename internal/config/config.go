// Package config provides configuration management for the Art-Net node.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration values the node is started with.
type Config struct {
	// Process
	Env            string
	NonInteractive bool // for Docker/CI: skip any interactive prompts

	// Network interface
	BindInterface string // preferred interface name; empty selects the first usable one

	// Node identity (spec.md §3)
	ShortName string
	LongName  string

	NetAddress    int // 0..127
	SubnetAddress int // 0..15

	OEM  int
	ESTA int

	BroadcastThreshold  int // subscriber count at/above which unicast switches to broadcast
	AlwaysBroadcast     bool
	UseLimitedBroadcast bool
	SendReplyOnChange   bool

	// Per-port static assignment at startup. 0xF0 (DisablePort) leaves a
	// port disabled; ports are reconfigurable afterward via SetPortUniverse.
	InputUniverses  [4]int
	OutputUniverses [4]int

	// OutputMergeModes is "HTP" or "LTP" per output port.
	OutputMergeModes [4]string

	// Operational HTTP/WS surface
	StatusAddr string
	CORSOrigin string
}

// Load loads configuration from, in increasing priority: built-in defaults,
// an optional TOML node profile named by ARTNET_CONFIG_FILE (see file.go),
// then environment variables. A file value is used only where the
// corresponding environment variable is unset; the file itself is optional
// and its absence is not an error.
func Load() *Config {
	cfg := &Config{
		Env:            "development",
		NonInteractive: false,

		BindInterface: "",

		ShortName: "artnetnode",
		LongName:  "artnetnode Art-Net node",

		NetAddress:    0,
		SubnetAddress: 0,

		OEM:  0x0000,
		ESTA: 0x0000,

		BroadcastThreshold:  30,
		AlwaysBroadcast:     false,
		UseLimitedBroadcast: false,
		SendReplyOnChange:   true,

		InputUniverses:  [4]int{0xF0, 0xF0, 0xF0, 0xF0},
		OutputUniverses: [4]int{0, 0xF0, 0xF0, 0xF0},

		OutputMergeModes: [4]string{"HTP", "HTP", "HTP", "HTP"},

		StatusAddr: ":8090",
		CORSOrigin: "http://localhost:3000",
	}

	if path := os.Getenv("ARTNET_CONFIG_FILE"); path != "" {
		profile, err := LoadProfile(path)
		if err != nil {
			log.Printf("config: %v", err)
		} else {
			profile.applyTo(cfg)
		}
	}

	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.NonInteractive = getEnvBool("NON_INTERACTIVE", cfg.NonInteractive)

	cfg.BindInterface = getEnv("ARTNET_INTERFACE", cfg.BindInterface)

	cfg.ShortName = getEnv("ARTNET_SHORT_NAME", cfg.ShortName)
	cfg.LongName = getEnv("ARTNET_LONG_NAME", cfg.LongName)

	cfg.NetAddress = getEnvInt("ARTNET_NET", cfg.NetAddress)
	cfg.SubnetAddress = getEnvInt("ARTNET_SUBNET", cfg.SubnetAddress)

	cfg.OEM = getEnvInt("ARTNET_OEM", cfg.OEM)
	cfg.ESTA = getEnvInt("ARTNET_ESTA", cfg.ESTA)

	cfg.BroadcastThreshold = getEnvInt("ARTNET_BROADCAST_THRESHOLD", cfg.BroadcastThreshold)
	cfg.AlwaysBroadcast = getEnvBool("ARTNET_ALWAYS_BROADCAST", cfg.AlwaysBroadcast)
	cfg.UseLimitedBroadcast = getEnvBool("ARTNET_LIMITED_BROADCAST", cfg.UseLimitedBroadcast)
	cfg.SendReplyOnChange = getEnvBool("ARTNET_REPLY_ON_CHANGE", cfg.SendReplyOnChange)

	cfg.InputUniverses = getEnvIntArray4("ARTNET_INPUT_UNIVERSES", cfg.InputUniverses)
	cfg.OutputUniverses = getEnvIntArray4("ARTNET_OUTPUT_UNIVERSES", cfg.OutputUniverses)

	cfg.OutputMergeModes = getEnvStringArray4("ARTNET_MERGE_MODES", cfg.OutputMergeModes)

	cfg.StatusAddr = getEnv("STATUS_ADDR", cfg.StatusAddr)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 0, 32); err == nil {
			return int(intVal)
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvIntArray4 parses a comma-separated list of up to 4 integers (decimal
// or 0x-prefixed hex), leaving unset positions at their default.
func getEnvIntArray4(key string, defaultValue [4]int) [4]int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	out := defaultValue
	parts := strings.Split(value, ",")
	for i := 0; i < len(parts) && i < 4; i++ {
		p := strings.TrimSpace(parts[i])
		if p == "" {
			continue
		}
		if v, err := strconv.ParseInt(p, 0, 32); err == nil {
			out[i] = int(v)
		}
	}
	return out
}

// getEnvStringArray4 parses a comma-separated list of up to 4 tokens,
// leaving unset positions at their default.
func getEnvStringArray4(key string, defaultValue [4]string) [4]string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	out := defaultValue
	parts := strings.Split(value, ",")
	for i := 0; i < len(parts) && i < 4; i++ {
		p := strings.TrimSpace(parts[i])
		if p != "" {
			out[i] = strings.ToUpper(p)
		}
	}
	return out
}
