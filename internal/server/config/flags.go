package config

import (
	"flag"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/flagx"
)

var valueFlags = []string{
	"-a", "-d", "-s", "-t", "-l", "-u", "-p", "-b", "-g", "-e",
	"-grpc", "-redis", "-sqs-endpoint", "-sqs-queue", "-geo", "-retention",
	"-shred-interval", "-sweep-interval", "-trusted-proxies",
}

var boolFlags = []string{"-both-hashes"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   secret key
//	-t int      session idle timeout, minutes
//	-l string   log level
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, endpoint
//	-grpc string          health probe bind address
//	-redis string         Redis address for locks
//	-sqs-endpoint string  SQS endpoint override
//	-sqs-queue string     SQS queue URL for alerts
//	-geo string           IP-location endpoint
//	-retention int        shred retention, days
//	-shred-interval int   shred schedule, minutes (0 disables)
//	-sweep-interval int   expired secret sweep, minutes (0 disables)
//	-trusted-proxies string  comma-separated proxy IPs or CIDRs
//	-both-hashes          compare master and duress hashes unconditionally
//
// Only the flags above are looked at; anything else on the command line is
// left for other flag sets. Parse errors panic.
func parseFlags(config *Config, args []string) {
	filtered := append(flagx.FilterArgs(args, valueFlags), flagx.FilterBoolArgs(args, boolFlags)...)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP API")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	idle := fs.Int("t", int(config.SessionIdleTimeout.Minutes()), "session idle timeout (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level: debug|info|warn|error")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.EndpointAddrGRPC, "grpc", config.EndpointAddrGRPC, "address and port of gRPC health endpoint")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address for distributed locks")
	fs.StringVar(&config.SQSEndpoint, "sqs-endpoint", config.SQSEndpoint, "SQS endpoint override")
	fs.StringVar(&config.SQSQueueURL, "sqs-queue", config.SQSQueueURL, "SQS queue URL for alerts")
	fs.StringVar(&config.GeoEndpoint, "geo", config.GeoEndpoint, "IP geolocation endpoint")
	fs.IntVar(&config.RetentionDays, "retention", config.RetentionDays, "retention of soft-deleted entries (in days)")
	shred := fs.Int("shred-interval", int(config.ShredInterval.Minutes()), "shred schedule (in minutes)")
	sweep := fs.Int("sweep-interval", int(config.SecretSweepInterval.Minutes()), "expired secret sweep (in minutes)")
	proxies := fs.String("trusted-proxies", strings.Join(config.TrustedProxies, ","), "comma-separated reverse proxy IPs or CIDRs")
	fs.BoolVar(&config.EvaluateBothHashes, "both-hashes", config.EvaluateBothHashes, "compare both hashes on every login")

	if err := fs.Parse(filtered); err != nil {
		panic(err)
	}

	config.SessionIdleTimeout = time.Duration(*idle) * time.Minute
	config.ShredInterval = time.Duration(*shred) * time.Minute
	config.SecretSweepInterval = time.Duration(*sweep) * time.Minute
	config.TrustedProxies = splitList(*proxies)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
