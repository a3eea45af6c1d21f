package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"go.uber.org/multierr"
)

type config struct {
	listenAddr         string
	upstreamURL        string
	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	preciseRetryAfter  bool
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration
	limiterTableSize   int
	vaultName          string

	adminEnabled   bool
	metricsEnabled bool
	logDev         bool
	logVerbosity   int

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
	occupancyEvery         time.Duration
}

// fileConfig espelha o arquivo GATEWAY_CONFIG (JSON com comentários).
// Campos ausentes mantêm o padrão; variáveis de ambiente têm precedência.
type fileConfig struct {
	ListenAddr         *string  `json:"listen_addr"`
	UpstreamURL        *string  `json:"upstream_url"`
	RateEnabled        *bool    `json:"rate_enabled"`
	RateRPS            *float64 `json:"rate_rps"`
	RateBurst          *int     `json:"rate_burst"`
	RateKeyHeader      *string  `json:"rate_key_header"`
	TrustXFF           *bool    `json:"trust_xff"`
	RetryAfter         *string  `json:"retry_after"`
	PreciseRetryAfter  *bool    `json:"precise_retry_after"`
	AddHeaders         *bool    `json:"add_ratelimit_headers"`
	ConcurrencyMax     *int     `json:"concurrency_max"`
	ConcurrencyTimeout *string  `json:"concurrency_timeout"`
	LimiterTableSize   *int     `json:"limiter_table_size"`
	VaultName          *string  `json:"vault_name"`
	AdminEnabled       *bool    `json:"admin_enabled"`
	MetricsEnabled     *bool    `json:"metrics_enabled"`
	LogDev             *bool    `json:"log_dev"`
	LogVerbosity       *int     `json:"log_verbosity"`

	RateStats *struct {
		Enabled        *bool   `json:"enabled"`
		RedisAddr      *string `json:"redis_addr"`
		RedisDB        *int    `json:"redis_db"`
		Prefix         *string `json:"prefix"`
		TTL            *string `json:"ttl"`
		Bucket         *string `json:"bucket"`
		TrackKeys      *bool   `json:"track_keys"`
		OccupancyEvery *string `json:"occupancy_every"`
	} `json:"rate_stats"`
}

func defaultConfig() config {
	return config{
		listenAddr:       ":8080",
		rateEnabled:      true,
		rateRPS:          10,
		rateBurst:        20,
		retryAfter:       1 * time.Second,
		concurrencyMax:   100,
		limiterTableSize: 4096,
		vaultName:        "gateway",
		adminEnabled:     false,
		metricsEnabled:   true,
		logVerbosity:     2,
		rateStatsPrefix:  "gateway:stats",
		rateStatsTTL:     24 * time.Hour,
		rateStatsBucket:  "minute",
		occupancyEvery:   10 * time.Second,
	}
}

func readConfig() (config, error) {
	cfg := defaultConfig()

	burstFromFile := false
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		fc, err := loadConfigFile(path)
		if err != nil {
			return config{}, err
		}
		if err := fc.apply(&cfg); err != nil {
			return config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		burstFromFile = fc.RateBurst != nil
	}

	cfg.listenAddr = getenvDefault("LISTEN_ADDR", cfg.listenAddr)
	cfg.upstreamURL = getenvDefault("UPSTREAM_URL", cfg.upstreamURL)
	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", cfg.rateEnabled)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", cfg.rateRPS)
	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 pode dar a impressão de que
	// o limiter não está funcionando, porque as primeiras ~20 passam.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else if !burstFromFile && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
		cfg.rateBurst = 1
	}
	cfg.rateKeyHeader = getenvDefault("RATE_KEY_HEADER", cfg.rateKeyHeader)
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", cfg.trustXFF)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", cfg.retryAfter)
	cfg.preciseRetryAfter = getenvBoolDefault("PRECISE_RETRY_AFTER", cfg.preciseRetryAfter)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.addHeaders)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", cfg.concurrencyMax)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.concurrencyTimeout)
	cfg.limiterTableSize = getenvIntDefault("LIMITER_TABLE_SIZE", cfg.limiterTableSize)
	cfg.vaultName = getenvDefault("VAULT_NAME", cfg.vaultName)

	cfg.adminEnabled = getenvBoolDefault("ADMIN_ENABLED", cfg.adminEnabled)
	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", cfg.metricsEnabled)
	cfg.logDev = getenvBoolDefault("LOG_DEV", cfg.logDev)
	cfg.logVerbosity = getenvIntDefault("LOG_VERBOSITY", cfg.logVerbosity)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", cfg.rateStatsEnabled)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", cfg.rateStatsRedisAddr)
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", cfg.rateStatsRedisDB)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", cfg.rateStatsPrefix)
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", cfg.rateStatsTTL)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", cfg.rateStatsBucket)
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", cfg.rateStatsTrackKeys)
	cfg.occupancyEvery = getenvDurationDefault("RATE_STATS_OCCUPANCY_EVERY", cfg.occupancyEvery)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// validate junta todos os problemas em um único erro.
func (c config) validate() error {
	var errs error
	if strings.TrimSpace(c.upstreamURL) == "" {
		errs = multierr.Append(errs, errors.New("UPSTREAM_URL is required"))
	}
	if c.rateRPS <= 0 {
		errs = multierr.Append(errs, errors.New("RATE_RPS must be > 0"))
	}
	if c.rateBurst <= 0 {
		errs = multierr.Append(errs, errors.New("RATE_BURST must be > 0"))
	}
	if c.concurrencyMax < 0 {
		errs = multierr.Append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.limiterTableSize <= 0 {
		errs = multierr.Append(errs, errors.New("LIMITER_TABLE_SIZE must be > 0"))
	}
	if c.rateStatsEnabled && strings.TrimSpace(c.rateStatsRedisAddr) == "" {
		errs = multierr.Append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errs
}

func loadConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config file: %w", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fc, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return fc, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return fc, nil
}

func (fc fileConfig) apply(cfg *config) error {
	var errs error
	setString(&cfg.listenAddr, fc.ListenAddr)
	setString(&cfg.upstreamURL, fc.UpstreamURL)
	setBool(&cfg.rateEnabled, fc.RateEnabled)
	if fc.RateRPS != nil {
		cfg.rateRPS = *fc.RateRPS
	}
	setInt(&cfg.rateBurst, fc.RateBurst)
	setString(&cfg.rateKeyHeader, fc.RateKeyHeader)
	setBool(&cfg.trustXFF, fc.TrustXFF)
	errs = multierr.Append(errs, setDuration(&cfg.retryAfter, "retry_after", fc.RetryAfter))
	setBool(&cfg.preciseRetryAfter, fc.PreciseRetryAfter)
	setBool(&cfg.addHeaders, fc.AddHeaders)
	setInt(&cfg.concurrencyMax, fc.ConcurrencyMax)
	errs = multierr.Append(errs, setDuration(&cfg.concurrencyTimeout, "concurrency_timeout", fc.ConcurrencyTimeout))
	setInt(&cfg.limiterTableSize, fc.LimiterTableSize)
	setString(&cfg.vaultName, fc.VaultName)
	setBool(&cfg.adminEnabled, fc.AdminEnabled)
	setBool(&cfg.metricsEnabled, fc.MetricsEnabled)
	setBool(&cfg.logDev, fc.LogDev)
	setInt(&cfg.logVerbosity, fc.LogVerbosity)

	if rs := fc.RateStats; rs != nil {
		setBool(&cfg.rateStatsEnabled, rs.Enabled)
		setString(&cfg.rateStatsRedisAddr, rs.RedisAddr)
		setInt(&cfg.rateStatsRedisDB, rs.RedisDB)
		setString(&cfg.rateStatsPrefix, rs.Prefix)
		errs = multierr.Append(errs, setDuration(&cfg.rateStatsTTL, "rate_stats.ttl", rs.TTL))
		setString(&cfg.rateStatsBucket, rs.Bucket)
		setBool(&cfg.rateStatsTrackKeys, rs.TrackKeys)
		errs = multierr.Append(errs, setDuration(&cfg.occupancyEvery, "rate_stats.occupancy_every", rs.OccupancyEvery))
	}
	return errs
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
