package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/flagx"
	"github.com/dmitrijs2005/bridgeupload/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "24h" and integer nanoseconds are accepted. Fields
// left out of the file keep their current values.
type JsonConfig struct {
	EndpointAddrHTTP     *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC     *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SecretKey            *string         `json:"secret_key"`
	S3RootUser           *string         `json:"s3_root_user"`
	S3RootPassword       *string         `json:"s3_root_password"`
	S3Bucket             *string         `json:"s3_bucket"`
	S3Region             *string         `json:"s3_region"`
	S3BaseEndpoint       *string         `json:"s3_base_endpoint"`
	WorkQueueBackend     *string         `json:"work_queue_backend"`
	WorkQueueURL         *string         `json:"work_queue_url"`
	KafkaBrokers         []string        `json:"kafka_brokers"`
	KafkaTopic           *string         `json:"kafka_topic"`
	StorageEventQueueURL *string         `json:"storage_event_queue_url"`
	DedupeWindow         *timex.Duration `json:"dedupe_window"`
	PresignExpiry        *timex.Duration `json:"presign_expiry"`
	PollInterval         *timex.Duration `json:"poll_interval"`
	PollMaxIterations    *int            `json:"poll_max_iterations"`
	TimelineCacheSize    *int            `json:"timeline_cache_size"`
	TimelineCacheTTL     *timex.Duration `json:"timeline_cache_ttl"`
	LogBackend           *string         `json:"log_backend"`
	LogLevel             *string         `json:"log_level"`
}

// parseJson overlays Config with the JSON file named by -c/-config in args.
// Nothing happens when no file is named.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.WorkQueueBackend, c.WorkQueueBackend)
	setString(&config.WorkQueueURL, c.WorkQueueURL)
	if c.KafkaBrokers != nil {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.StorageEventQueueURL, c.StorageEventQueueURL)
	setDuration(&config.DedupeWindow, c.DedupeWindow)
	setDuration(&config.PresignExpiry, c.PresignExpiry)
	setDuration(&config.PollInterval, c.PollInterval)
	if c.PollMaxIterations != nil {
		config.PollMaxIterations = *c.PollMaxIterations
	}
	if c.TimelineCacheSize != nil {
		config.TimelineCacheSize = *c.TimelineCacheSize
	}
	setDuration(&config.TimelineCacheTTL, c.TimelineCacheTTL)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
