package models

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr     string `yaml:"server_addr"`
	DatabaseURL    string `yaml:"database_url"`
	KafkaBroker    string `yaml:"kafka_broker"`
	ViewpointTable string `yaml:"viewpoint_table"`
	RequestTopic   string `yaml:"request_topic"`
	ConsumerGroup  string `yaml:"consumer_group"`
	CacheMountPath string `yaml:"cache_mount_path"`
	AWSRegion      string `yaml:"aws_region"`
	AssumeRoleARN  string `yaml:"assume_role_arn"`
	RecordTTLDays  int    `yaml:"record_ttl_days"`
	PoolCacheSize  int    `yaml:"pool_cache_size"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		ServerAddr:     ":8080",
		ViewpointTable: "viewpoints",
		RequestTopic:   "viewpoint-requests",
		ConsumerGroup:  "viewpoint-worker-group",
		CacheMountPath: "/tmp/viewpoint",
		AWSRegion:      "us-west-2",
		RecordTTLDays:  1,
		PoolCacheSize:  20,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
			// Defaults plus environment overrides are a complete config.
		default:
			return nil, err
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

// Environment variables take priority over the config file so deployments can
// be reconfigured without shipping a new file.
func (c *Config) applyEnv() {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.KafkaBroker, "KAFKA_BROKER")
	setString(&c.ViewpointTable, "JOB_TABLE")
	setString(&c.RequestTopic, "JOB_QUEUE")
	setString(&c.CacheMountPath, "TILE_CACHE_MOUNT")
	setString(&c.AWSRegion, "AWS_DEFAULT_REGION")
	setString(&c.AssumeRoleARN, "STS_ARN")
	setInt(&c.RecordTTLDays, "RECORD_TTL_DAYS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
