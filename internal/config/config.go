package config

import (
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Public  Public
	Private Private
}

type Public struct {
	ListenAddr       string        `yaml:"listen_addr"`
	LogLevel         string        `yaml:"log_level"`
	LogJSON          bool          `yaml:"log_json"`
	SecureCookies    bool          `yaml:"secure_cookies"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxMessageLength int           `yaml:"max_message_length"` // runes, after trimming
	MessagesPerPage  int           `yaml:"messages_per_page"`
	AnonSessionTTL   time.Duration `yaml:"anon_session_ttl"` // server-enforced anonymous session expiry
	ConflictRetries  int           `yaml:"conflict_retries"` // extra attempts after a lost claim/ensure race
	EventBufferSize  int           `yaml:"event_buffer_size"` // per-subscriber broker channel depth
	SendRatePerSec   float64       `yaml:"send_rate_per_sec"` // per-caller message rate limit
	SendBurst        float64       `yaml:"send_burst"`
}

type Private struct {
	Pg        Pg                        `yaml:"pg"`
	JwtKey    string                    `yaml:"jwt_key"`
	Directory map[string]DirectoryEntry `yaml:"directory"` // student ref -> identity, owner-tier lookups only
}

type DirectoryEntry struct {
	DisplayName   string `yaml:"display_name"`
	StudentNumber string `yaml:"student_number"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
}

func (c *Config) JwtKey() string {
	return c.Private.JwtKey
}

func mustLoadPath(configPath string, output interface{}) {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		panic("can't read config file")
	}

	err = yaml.Unmarshal(configFile, output)
	if err != nil {
		panic("can't unmarshal config file")
	}
}

func MustLoad(configFolder string) *Config {
	var public Public
	mustLoadPath(path.Join(configFolder, "public.yaml"), &public)

	var private Private
	mustLoadPath(path.Join(configFolder, "private.yaml"), &private)

	cfg := &Config{public, private}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Public.ListenAddr == "" {
		c.Public.ListenAddr = ":8080"
	}
	if c.Public.MaxMessageLength == 0 {
		c.Public.MaxMessageLength = 4000
	}
	if c.Public.MessagesPerPage == 0 {
		c.Public.MessagesPerPage = 50
	}
	if c.Public.AnonSessionTTL == 0 {
		c.Public.AnonSessionTTL = 24 * time.Hour
	}
	if c.Public.ConflictRetries == 0 {
		c.Public.ConflictRetries = 1
	}
	if c.Public.EventBufferSize == 0 {
		c.Public.EventBufferSize = 64
	}
	if c.Public.SendRatePerSec == 0 {
		c.Public.SendRatePerSec = 1
	}
	if c.Public.SendBurst == 0 {
		c.Public.SendBurst = 5
	}
}
