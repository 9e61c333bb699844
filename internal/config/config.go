package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	DNSAPIURL          string `env:"DNS_API_URL,required=true"`
	DNSAPIToken        string `env:"DNS_API_TOKEN"`
	MailboxAPIURL      string `env:"MAILBOX_API_URL,required=true"`
	SequencerAPIURL    string `env:"SEQUENCER_API_URL,required=true"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	StepConcurrency    int    `env:"STEP_CONCURRENCY,default=4"`
	JobConcurrency     int    `env:"JOB_CONCURRENCY,default=2"`
	MailboxesPerTenant int    `env:"MAILBOXES_PER_TENANT,default=50"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
