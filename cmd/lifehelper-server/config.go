package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	lifehelper "github.com/sengeiou/life-helper-server"
)

const envPrefix = "LIFEHELPER_"

// serverConfig is the on-disk shape of the server configuration. Every
// field may be overridden by a LIFEHELPER_* environment variable and the
// most common ones by flags.
type serverConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// PublicBaseURL is the externally reachable base of the HTTP API,
	// used to build QR image URLs.
	PublicBaseURL string `yaml:"public_base_url"`

	Log logConfig `yaml:"log"`

	Redis redisConfig `yaml:"redis"`

	// DevRedis runs an embedded in-memory Redis instead of dialing
	// Redis.Addr. Data does not survive a restart.
	DevRedis bool `yaml:"dev_redis"`

	Weixin weixinConfig `yaml:"weixin"`

	Users usersConfig `yaml:"users"`

	Ticket ticketConfig `yaml:"ticket"`

	Session sessionConfig `yaml:"session"`

	Credential credentialConfig `yaml:"credential"`

	RateLimit rateLimitConfig `yaml:"rate_limit"`

	// Audit logs ticket, login and credential events through the server
	// logger.
	Audit bool `yaml:"audit"`
}

type logConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type weixinConfig struct {
	AppID     string `yaml:"app_id"`
	AppSecret string `yaml:"app_secret"`
	BaseURL   string `yaml:"base_url"`

	// QRProvider selects how login QR codes are drawn: "wxacode" asks the
	// upstream for a mini-program code, "local" renders a plain QR code
	// of LinkPrefix + ticket.
	QRProvider string `yaml:"qr_provider"`
	Page       string `yaml:"page"`
	EnvVersion string `yaml:"env_version"`
	LinkPrefix string `yaml:"link_prefix"`
}

type usersConfig struct {
	// Backend is redis or mysql.
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
	Prefix  string `yaml:"prefix"`
}

type ticketConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type sessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SigningMethod string        `yaml:"signing_method"`
	// Secret is the HS256 key.
	Secret string `yaml:"secret"`
	// PrivateKeyFile and PublicKeyFile hold PEM encoded Ed25519 keys.
	PrivateKeyFile string `yaml:"private_key_file"`
	PublicKeyFile  string `yaml:"public_key_file"`
	Issuer         string `yaml:"issuer"`
}

type credentialConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MinTTL          time.Duration `yaml:"min_ttl"`
}

type rateLimitConfig struct {
	IssuesPerIP    int `yaml:"issues_per_ip"`
	PollsPerTicket int `yaml:"polls_per_ticket"`
}

func defaultServerConfig() serverConfig {
	lib := lifehelper.DefaultConfig()
	return serverConfig{
		Listen:        ":8080",
		PublicBaseURL: "http://localhost:8080",
		Log:           logConfig{Level: "info", Format: "text"},
		Redis:         redisConfig{Addr: "127.0.0.1:6379"},
		Weixin:        weixinConfig{QRProvider: "wxacode", Page: "pages/login/confirm", EnvVersion: "release"},
		Users:         usersConfig{Backend: "redis", Prefix: "lhu"},
		Ticket:        ticketConfig{TTL: lib.Ticket.TTL},
		Session: sessionConfig{
			TTL:           lib.JWT.SessionTTL,
			SigningMethod: lib.JWT.SigningMethod,
			Issuer:        lib.JWT.Issuer,
		},
		Credential: credentialConfig{
			RefreshInterval: lib.Credential.RefreshInterval,
			MinTTL:          lib.Credential.MinTTL,
		},
		RateLimit: rateLimitConfig{
			IssuesPerIP:    lib.RateLimit.MaxIssuesPerIP,
			PollsPerTicket: lib.RateLimit.MaxPollsPerTicket,
		},
	}
}

// loadConfig resolves configuration in increasing precedence: defaults,
// YAML file, .env file, process environment, flags.
func loadConfig(args []string, environ func(string) (string, bool), stderr io.Writer) (serverConfig, error) {
	cfg := defaultServerConfig()

	flags := pflag.NewFlagSet("lifehelper-server", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		configPath string
		envFile    string
		listen     string
		logLevel   string
		devRedis   bool
	)
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (missing is fine)")
	flags.StringVar(&listen, "listen", "", "HTTP listen address")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&devRedis, "dev-redis", false, "run an embedded in-memory Redis")
	if err := flags.Parse(args); err != nil {
		return serverConfig{}, err
	}

	if configPath != "" {
		if err := readConfigFile(configPath, &cfg); err != nil {
			return serverConfig{}, err
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, os.ErrNotExist) && !flags.Changed("env-file"):
		default:
			return serverConfig{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := environ(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return serverConfig{}, err
	}

	if flags.Changed("listen") {
		cfg.Listen = listen
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("dev-redis") {
		cfg.DevRedis = devRedis
	}

	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func readConfigFile(path string, cfg *serverConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *serverConfig, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(envPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN", &cfg.Listen)
	str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	flag("DEV_REDIS", &cfg.DevRedis)
	str("WEIXIN_APP_ID", &cfg.Weixin.AppID)
	str("WEIXIN_APP_SECRET", &cfg.Weixin.AppSecret)
	str("WEIXIN_BASE_URL", &cfg.Weixin.BaseURL)
	str("WEIXIN_QR_PROVIDER", &cfg.Weixin.QRProvider)
	str("USERS_BACKEND", &cfg.Users.Backend)
	str("USERS_DSN", &cfg.Users.DSN)
	dur("TICKET_TTL", &cfg.Ticket.TTL)
	dur("SESSION_TTL", &cfg.Session.TTL)
	str("SESSION_SIGNING_METHOD", &cfg.Session.SigningMethod)
	str("SESSION_SECRET", &cfg.Session.Secret)
	str("SESSION_PRIVATE_KEY_FILE", &cfg.Session.PrivateKeyFile)
	str("SESSION_PUBLIC_KEY_FILE", &cfg.Session.PublicKeyFile)
	dur("CREDENTIAL_REFRESH_INTERVAL", &cfg.Credential.RefreshInterval)
	dur("CREDENTIAL_MIN_TTL", &cfg.Credential.MinTTL)
	num("RATE_ISSUES_PER_IP", &cfg.RateLimit.IssuesPerIP)
	num("RATE_POLLS_PER_TICKET", &cfg.RateLimit.PollsPerTicket)
	flag("AUDIT", &cfg.Audit)

	return errors.Join(errs...)
}

func (c serverConfig) validate() error {
	if c.Listen == "" {
		return errors.New("listen address required")
	}
	if c.PublicBaseURL == "" {
		return errors.New("public_base_url required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if !c.DevRedis && c.Redis.Addr == "" {
		return errors.New("redis.addr required unless dev_redis is set")
	}
	if (c.Weixin.AppID == "") != (c.Weixin.AppSecret == "") {
		return errors.New("weixin.app_id and weixin.app_secret must be set together")
	}
	switch c.Weixin.QRProvider {
	case "local":
	case "wxacode":
		if c.Weixin.AppID == "" {
			return errors.New("weixin.qr_provider wxacode requires weixin credentials")
		}
	default:
		return fmt.Errorf("weixin.qr_provider must be wxacode or local, got %q", c.Weixin.QRProvider)
	}
	switch c.Users.Backend {
	case "redis":
	case "mysql":
		if c.Users.DSN == "" {
			return errors.New("users.dsn required for the mysql backend")
		}
	default:
		return fmt.Errorf("users.backend must be redis or mysql, got %q", c.Users.Backend)
	}
	switch c.Session.SigningMethod {
	case "hs256":
		if c.Session.Secret == "" {
			return errors.New("session.secret required for hs256")
		}
	case "ed25519":
		if c.Session.PrivateKeyFile == "" || c.Session.PublicKeyFile == "" {
			return errors.New("session key files required for ed25519")
		}
	default:
		return fmt.Errorf("session.signing_method must be ed25519 or hs256, got %q", c.Session.SigningMethod)
	}
	return nil
}

// engineConfig maps the server configuration onto the library config and
// loads key material.
func (c serverConfig) engineConfig(readFile func(string) ([]byte, error)) (lifehelper.Config, error) {
	cfg := lifehelper.DefaultConfig()
	cfg.Ticket.TTL = c.Ticket.TTL
	cfg.Credential.RefreshInterval = c.Credential.RefreshInterval
	cfg.Credential.MinTTL = c.Credential.MinTTL
	cfg.JWT.SessionTTL = c.Session.TTL
	cfg.JWT.SigningMethod = c.Session.SigningMethod
	cfg.JWT.Issuer = c.Session.Issuer
	cfg.RateLimit.EnableIssueThrottle = c.RateLimit.IssuesPerIP > 0
	cfg.RateLimit.MaxIssuesPerIP = c.RateLimit.IssuesPerIP
	cfg.RateLimit.EnablePollThrottle = c.RateLimit.PollsPerTicket > 0
	cfg.RateLimit.MaxPollsPerTicket = c.RateLimit.PollsPerTicket
	cfg.Audit.Enabled = c.Audit

	switch c.Session.SigningMethod {
	case "hs256":
		cfg.JWT.PrivateKey = []byte(c.Session.Secret)
		cfg.JWT.PublicKey = []byte(c.Session.Secret)
	default:
		priv, err := readFile(c.Session.PrivateKeyFile)
		if err != nil {
			return lifehelper.Config{}, fmt.Errorf("read session private key: %w", err)
		}
		pub, err := readFile(c.Session.PublicKeyFile)
		if err != nil {
			return lifehelper.Config{}, fmt.Errorf("read session public key: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		cfg.JWT.PublicKey = pub
	}

	if err := cfg.Validate(); err != nil {
		return lifehelper.Config{}, err
	}
	return cfg, nil
}

func (c serverConfig) weixinEnabled() bool {
	return c.Weixin.AppID != ""
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
