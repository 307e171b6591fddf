package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{
				"-a", "127.0.0.1:9090", "-r", ":6000", "-d", "db", "-s", "secret",
				"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
				"-q", "kafka", "-w", "http://sqs/q", "-k", "k1:9092,k2:9092", "-t", "topic",
				"-n", "http://sqs/events", "-l", "zap", "-v", "debug",
			},
			expected: &Config{
				EndpointAddrHTTP:     "127.0.0.1:9090",
				EndpointAddrGRPC:     ":6000",
				DatabaseDSN:          "db",
				SecretKey:            "secret",
				S3RootUser:           "user",
				S3RootPassword:       "password",
				S3Bucket:             "bucket",
				S3Region:             "us-west-1",
				S3BaseEndpoint:       "http://endpoint",
				WorkQueueBackend:     "kafka",
				WorkQueueURL:         "http://sqs/q",
				KafkaBrokers:         []string{"k1:9092", "k2:9092"},
				KafkaTopic:           "topic",
				StorageEventQueueURL: "http://sqs/events",
				LogBackend:           "zap",
				LogLevel:             "debug",
			},
		},
		{
			name:     "foreign flags are ignored",
			args:     []string{"-c", "cfg.json", "-z", "1", "-b", "only-bucket"},
			expected: &Config{S3Bucket: "only-bucket"},
		},
		{
			name:    "flag without value",
			args:    []string{"-b"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
