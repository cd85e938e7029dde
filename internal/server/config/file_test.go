package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseFile_JSON(t *testing.T) {
	path := writeTemp(t, "cfg.json", `{
		"endpoint_addr_http": "www.example:9000",
		"database_dsn": "postgres://x",
		"secret_key": "my_secret_key",
		"log_json": false,
		"session_idle_timeout": "2h",
		"shred_interval": "6h",
		"retention_days": 14,
		"alert_workers": 2,
		"redis_addr": "redis:6379",
		"sqs_queue_url": "http://sqs/alerts",
		"s3_bucket": "bucket",
		"evaluate_both_hashes": true
	}`)

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, []string{"-config", path})

	assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
	assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
	assert.Equal(t, "my_secret_key", cfg.SecretKey)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTimeout)
	assert.Equal(t, 6*time.Hour, cfg.ShredInterval)
	assert.Equal(t, 14, cfg.RetentionDays)
	assert.Equal(t, 2, cfg.AlertWorkers)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "http://sqs/alerts", cfg.SQSQueueURL)
	assert.Equal(t, "bucket", cfg.S3Bucket)
	assert.True(t, cfg.EvaluateBothHashes)

	// untouched values keep their defaults
	assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
	assert.Equal(t, 256, cfg.AlertQueueSize)
}

func Test_parseFile_YAML(t *testing.T) {
	path := writeTemp(t, "cfg.yaml", "endpoint_addr_grpc: \":6001\"\nalert_timeout: 3s\ngeo_cache_size: 10\ntrusted_proxies:\n  - 10.1.0.0/16\n")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg, []string{"-c", path})

	assert.Equal(t, ":6001", cfg.EndpointAddrGRPC)
	assert.Equal(t, 3*time.Second, cfg.AlertTimeout)
	assert.Equal(t, 10, cfg.GeoCacheSize)
	assert.Equal(t, []string{"10.1.0.0/16"}, cfg.TrustedProxies)
}

func Test_parseFile_NoFlagNoChanges(t *testing.T) {
	cfg := &Config{EndpointAddrHTTP: "defaults:1234"}
	parseFile(cfg, []string{"-x", "1"})
	assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
}

func Test_parseFile_Invalid(t *testing.T) {
	bad := writeTemp(t, "bad.json", `{ this is not valid json`)
	require.Panics(t, func() { parseFile(&Config{}, []string{"-c", bad}) })

	require.Panics(t, func() { parseFile(&Config{}, []string{"-c", filepath.Join(t.TempDir(), "missing.json")}) })
}
