package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/zkvault/internal/flagx"
	"github.com/dmitrijs2005/zkvault/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the configuration. Duration fields
// accept "15m" style strings or integer nanoseconds. Pointer and zero
// values mean "not set" and leave the current value untouched.
type fileConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC    string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN         string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey           string         `json:"secret_key" yaml:"secret_key"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	LogJSON             *bool          `json:"log_json" yaml:"log_json"`
	SessionIdleTimeout  timex.Duration `json:"session_idle_timeout" yaml:"session_idle_timeout"`
	SecretSweepInterval timex.Duration `json:"secret_sweep_interval" yaml:"secret_sweep_interval"`
	ShredInterval       timex.Duration `json:"shred_interval" yaml:"shred_interval"`
	RetentionDays       int            `json:"retention_days" yaml:"retention_days"`
	AlertWorkers        int            `json:"alert_workers" yaml:"alert_workers"`
	AlertQueueSize      int            `json:"alert_queue_size" yaml:"alert_queue_size"`
	AlertTimeout        timex.Duration `json:"alert_timeout" yaml:"alert_timeout"`
	RedisAddr           string         `json:"redis_addr" yaml:"redis_addr"`
	SQSEndpoint         string         `json:"sqs_endpoint" yaml:"sqs_endpoint"`
	SQSQueueURL         string         `json:"sqs_queue_url" yaml:"sqs_queue_url"`
	S3RootUser          string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region            string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	GeoEndpoint         string         `json:"geo_endpoint" yaml:"geo_endpoint"`
	GeoCacheSize        int            `json:"geo_cache_size" yaml:"geo_cache_size"`
	PublicRateLimit     float64        `json:"public_rate_limit" yaml:"public_rate_limit"`
	PublicRateBurst     int            `json:"public_rate_burst" yaml:"public_rate_burst"`
	TrustedProxies      []string       `json:"trusted_proxies" yaml:"trusted_proxies"`
	EvaluateBothHashes  *bool          `json:"evaluate_both_hashes" yaml:"evaluate_both_hashes"`
}

// parseFile loads the file named by -c/-config, if any, and overlays its
// values onto config. Files ending in .yaml or .yml are read as YAML,
// everything else as JSON. Unreadable or malformed files panic.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *fileConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.SQSEndpoint, c.SQSEndpoint)
	setString(&config.SQSQueueURL, c.SQSQueueURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.GeoEndpoint, c.GeoEndpoint)

	if c.LogJSON != nil {
		config.LogJSON = *c.LogJSON
	}
	if c.EvaluateBothHashes != nil {
		config.EvaluateBothHashes = *c.EvaluateBothHashes
	}
	if c.SessionIdleTimeout.Duration > 0 {
		config.SessionIdleTimeout = c.SessionIdleTimeout.Duration
	}
	if c.SecretSweepInterval.Duration > 0 {
		config.SecretSweepInterval = c.SecretSweepInterval.Duration
	}
	if c.ShredInterval.Duration > 0 {
		config.ShredInterval = c.ShredInterval.Duration
	}
	if c.AlertTimeout.Duration > 0 {
		config.AlertTimeout = c.AlertTimeout.Duration
	}
	if c.RetentionDays > 0 {
		config.RetentionDays = c.RetentionDays
	}
	if c.AlertWorkers > 0 {
		config.AlertWorkers = c.AlertWorkers
	}
	if c.AlertQueueSize > 0 {
		config.AlertQueueSize = c.AlertQueueSize
	}
	if c.GeoCacheSize > 0 {
		config.GeoCacheSize = c.GeoCacheSize
	}
	if c.PublicRateLimit > 0 {
		config.PublicRateLimit = c.PublicRateLimit
	}
	if c.PublicRateBurst > 0 {
		config.PublicRateBurst = c.PublicRateBurst
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
