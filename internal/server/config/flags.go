package config

import (
	"flag"
	"io"
	"strings"

	"github.com/dmitrijs2005/bridgeupload/internal/flagx"
)

var serverFlags = []string{"-a", "-r", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-q", "-w", "-k", "-t", "-n", "-l", "-v"}

// parseFlags overlays Config with command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-r string   gRPC health endpoint bind address
//	-d string   PostgreSQL DSN
//	-s string   token HMAC secret
//	-u string   S3 user
//	-p string   S3 password
//	-b string   S3 upload bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-q string   work queue backend (sqs|kafka)
//	-w string   SQS work queue URL
//	-k string   comma-separated Kafka brokers
//	-t string   Kafka topic
//	-n string   SQS storage-event queue URL
//	-l string   log backend (slog|zap)
//	-v string   log level
//
// Only these flags are looked at, so -c/-config and foreign flags pass through.
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP bind address")
	fs.StringVar(&config.EndpointAddrGRPC, "r", config.EndpointAddrGRPC, "gRPC health bind address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 upload bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.WorkQueueBackend, "q", config.WorkQueueBackend, "work queue backend")
	fs.StringVar(&config.WorkQueueURL, "w", config.WorkQueueURL, "SQS work queue URL")
	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "Kafka brokers")
	fs.StringVar(&config.KafkaTopic, "t", config.KafkaTopic, "Kafka topic")
	fs.StringVar(&config.StorageEventQueueURL, "n", config.StorageEventQueueURL, "SQS storage-event queue URL")
	fs.StringVar(&config.LogBackend, "l", config.LogBackend, "log backend")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		return err
	}

	config.KafkaBrokers = splitList(*brokers)
	return nil
}
