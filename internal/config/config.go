package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"gamify-journal/internal/progression"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret        string
		TokenTTLMinutes  int
		RegisterPassword string
		// RateLimit is requests per second per client on register and token.
		RateLimit float64
		RateBurst int
	}
	Progression struct {
		BaseXP             int64
		StreakBonusPerDay  int64
		StreakBonusCap     int64
		LengthDivisor      int64
		LengthBonusCap     int64
		LevelStep          int64
		MaxLevel           int
		MaxPredicatePasses int
		MaxRetries         int
		Timezone           string
	}
	Lock struct {
		RedisURL string
		TTL      time.Duration
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
	}
	AWS struct {
		Profile string
	}
	Export struct {
		MaxConcurrent int
	}
	Scheduler struct {
		QuestExpiry string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("JOURNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rules := progression.DefaultRules()
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/journal.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 30)
	v.SetDefault("auth.registerpassword", "")
	v.SetDefault("auth.ratelimit", 1.0)
	v.SetDefault("auth.rateburst", 5)
	v.SetDefault("progression.basexp", rules.BaseXP)
	v.SetDefault("progression.streakbonusperday", rules.StreakBonusPerDay)
	v.SetDefault("progression.streakbonuscap", rules.StreakBonusCap)
	v.SetDefault("progression.lengthdivisor", rules.LengthDivisor)
	v.SetDefault("progression.lengthbonuscap", rules.LengthBonusCap)
	v.SetDefault("progression.levelstep", 100)
	v.SetDefault("progression.maxlevel", rules.Levels.MaxLevel())
	v.SetDefault("progression.maxpredicatepasses", rules.MaxPredicatePasses)
	v.SetDefault("progression.maxretries", 3)
	v.SetDefault("progression.timezone", "UTC")
	v.SetDefault("lock.redisurl", "")
	v.SetDefault("lock.ttl", "10s")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "journal-exports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("export.maxconcurrent", 2)
	v.SetDefault("scheduler.questexpiry", "@every 1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return errors.New("auth token ttl must be positive")
	}
	if c.Progression.MaxRetries < 0 {
		return errors.New("progression max retries must not be negative")
	}
	if c.Lock.TTL <= 0 {
		return errors.New("lock ttl must be positive")
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	return nil
}

// Rules converts the progression section into engine rules.
func (c Config) Rules() (progression.Rules, error) {
	p := c.Progression
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return progression.Rules{}, fmt.Errorf("progression timezone %q: %w", p.Timezone, err)
	}
	rules := progression.Rules{
		BaseXP:             p.BaseXP,
		StreakBonusPerDay:  p.StreakBonusPerDay,
		StreakBonusCap:     p.StreakBonusCap,
		LengthDivisor:      p.LengthDivisor,
		LengthBonusCap:     p.LengthBonusCap,
		Levels:             progression.NewLevelTable(p.LevelStep, p.MaxLevel),
		MaxPredicatePasses: p.MaxPredicatePasses,
		Location:           loc,
	}
	if err := rules.Validate(); err != nil {
		return progression.Rules{}, fmt.Errorf("progression: %w", err)
	}
	return rules, nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// AuthRate is the token bucket refill rate for auth endpoints.
func (c Config) AuthRate() rate.Limit {
	if c.Auth.RateLimit <= 0 {
		return rate.Inf
	}
	return rate.Limit(c.Auth.RateLimit)
}

// NewLogger builds the process logger from the log section.
func (c Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}
