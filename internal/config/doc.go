// Package config handles configuration loading, saving, and schema definition.
package config

import "time"

// Config is the top-level chatvault configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	ArchiveDir  string `json:"archiveDir,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
	RepliesFile string `json:"repliesFile,omitempty"`

	// SessionTTLMinutes is the inactivity timeout. The previous bot shipped
	// with 1 minute while a source comment claimed five; one is the observed
	// behavior, so one is the default. Changing it is a config edit.
	SessionTTLMinutes int `json:"sessionTtlMinutes,omitempty"`

	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Redis    RedisConfig    `json:"redis"`
	Server   ServerConfig   `json:"server"`
}

// WhatsAppConfig holds transport settings.
type WhatsAppConfig struct {
	DBPath string `json:"dbPath,omitempty"` // whatsmeow device store (sqlite)
}

// RedisConfig holds the optional session-mirror connection.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// ServerConfig holds the status server settings.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// SessionTTL returns the inactivity timeout as a duration.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ArchiveDir:        "conversaciones",
		Trigger:           "start",
		SessionTTLMinutes: 1,
		WhatsApp:          WhatsAppConfig{DBPath: "chatvault.db"},
		Server:            ServerConfig{Host: "0.0.0.0", Port: 3000},
	}
}
