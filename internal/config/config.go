package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerCfg struct {
	Port           string `yaml:"port"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

type CORSCfg struct {
	// Origins is the allow-list of trusted origins.
	Origins []string `yaml:"origins"`
	// AllowAllWhenEmpty controls the fallback when no origins are
	// configured: true reflects any origin (dev fallback), false denies
	// every cross-origin browser request. Set it deliberately.
	AllowAllWhenEmpty bool `yaml:"allow_all_when_empty"`
}

type TokenCfg struct {
	Secret string `yaml:"secret"`
}

type WindowCfg struct {
	Max       int `yaml:"max"`
	WindowMin int `yaml:"window_min"`
}

func (w WindowCfg) Window() time.Duration {
	return time.Duration(w.WindowMin) * time.Minute
}

type SlowDownCfg struct {
	After     int `yaml:"after"`
	DelayMs   int `yaml:"delay_ms"`
	WindowMin int `yaml:"window_min"`
}

func (s SlowDownCfg) Delay() time.Duration {
	return time.Duration(s.DelayMs) * time.Millisecond
}

func (s SlowDownCfg) Window() time.Duration {
	return time.Duration(s.WindowMin) * time.Minute
}

type LimitsCfg struct {
	Global       WindowCfg   `yaml:"global"`
	SlowDown     SlowDownCfg `yaml:"slow_down"`
	Login        WindowCfg   `yaml:"login"`
	Register     WindowCfg   `yaml:"register"`
	MaxBodyBytes int64       `yaml:"max_body_bytes"`
}

type DBCfg struct {
	DSN string `yaml:"dsn"`
}

type LoggingCfg struct {
	Level string `yaml:"level"` // info|debug
}

type Config struct {
	Server         ServerCfg  `yaml:"server"`
	CORS           CORSCfg    `yaml:"cors"`
	Token          TokenCfg   `yaml:"token"`
	Limits         LimitsCfg  `yaml:"limits"`
	DB             DBCfg      `yaml:"db"`
	TrustedProxies []string   `yaml:"trusted_proxies"`
	Logging        LoggingCfg `yaml:"logging"`
}

// Load builds the configuration from an optional YAML file overridden by
// environment variables (a .env file is honored if present). Defaults match
// the production posture: 100/15min global, slow down after 30 by 250ms,
// 10/10min login, 5/60min register, 100KiB bodies.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CORS: CORSCfg{AllowAllWhenEmpty: true},
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	// defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "4000"
	}
	if cfg.Server.ReadTimeoutMs == 0 {
		cfg.Server.ReadTimeoutMs = 10000
	}
	if cfg.Server.WriteTimeoutMs == 0 {
		cfg.Server.WriteTimeoutMs = 15000
	}
	if cfg.Limits.Global.Max == 0 {
		cfg.Limits.Global.Max = 100
	}
	if cfg.Limits.Global.WindowMin == 0 {
		cfg.Limits.Global.WindowMin = 15
	}
	if cfg.Limits.SlowDown.After == 0 {
		cfg.Limits.SlowDown.After = 30
	}
	if cfg.Limits.SlowDown.DelayMs == 0 {
		cfg.Limits.SlowDown.DelayMs = 250
	}
	if cfg.Limits.SlowDown.WindowMin == 0 {
		cfg.Limits.SlowDown.WindowMin = 15
	}
	if cfg.Limits.Login.Max == 0 {
		cfg.Limits.Login.Max = 10
	}
	if cfg.Limits.Login.WindowMin == 0 {
		cfg.Limits.Login.WindowMin = 10
	}
	if cfg.Limits.Register.Max == 0 {
		cfg.Limits.Register.Max = 5
	}
	if cfg.Limits.Register.WindowMin == 0 {
		cfg.Limits.Register.WindowMin = 60
	}
	if cfg.Limits.MaxBodyBytes == 0 {
		cfg.Limits.MaxBodyBytes = 100 * 1024
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Token.Secret = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.CORS.Origins = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOW_ALL_WHEN_EMPTY"); v != "" {
		cfg.CORS.AllowAllWhenEmpty = v == "true" || v == "1"
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	setEnvInt(&cfg.Limits.Global.Max, "RATE_LIMIT_MAX")
	setEnvInt(&cfg.Limits.Global.WindowMin, "RATE_LIMIT_WINDOW_MIN")
	setEnvInt(&cfg.Limits.SlowDown.After, "SLOW_DOWN_AFTER")
	setEnvInt(&cfg.Limits.SlowDown.DelayMs, "SLOW_DOWN_DELAY_MS")
	setEnvInt(&cfg.Limits.Login.Max, "LOGIN_LIMIT_MAX")
	setEnvInt(&cfg.Limits.Login.WindowMin, "LOGIN_LIMIT_WINDOW_MIN")
	setEnvInt(&cfg.Limits.Register.Max, "REGISTER_LIMIT_MAX")
	setEnvInt(&cfg.Limits.Register.WindowMin, "REGISTER_LIMIT_WINDOW_MIN")
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Limits.MaxBodyBytes = n
		}
	}
}

func setEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations that would silently degrade at runtime.
// In particular a missing signing secret fails here, at startup, instead of
// failing every login identically later.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("token.secret (JWT_SECRET) is required")
	}
	if len(c.Token.Secret) < 16 {
		return errors.New("token.secret too short; need >=16 bytes")
	}
	if c.Limits.Global.Max <= 0 || c.Limits.Global.WindowMin <= 0 {
		return errors.New("limits.global must be positive")
	}
	if c.Limits.SlowDown.After < 0 || c.Limits.SlowDown.DelayMs < 0 {
		return errors.New("limits.slow_down must be non-negative")
	}
	if c.Limits.SlowDown.After >= c.Limits.Global.Max {
		return errors.New("limits.slow_down.after must be below limits.global.max")
	}
	if c.Limits.Login.Max <= 0 || c.Limits.Register.Max <= 0 {
		return errors.New("limits.login and limits.register must be positive")
	}
	if c.Limits.MaxBodyBytes <= 0 {
		return errors.New("limits.max_body_bytes must be positive")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyNets parses the trusted proxy list into CIDRs. Bare addresses
// are treated as /32 (or /128) networks.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range c.TrustedProxies {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				entry = fmt.Sprintf("%s/%d", entry, bits)
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}
