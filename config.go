package notifier

import "time"

// Config represents the main config
type Config struct {
	DB struct {
		URL string
	}

	HTTP struct {
		Addr string
	}

	Server struct {
		URL string
	}

	Site struct {
		Name string
		URL  string
	}

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}

	Resend struct {
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
	}

	Newsletter struct {
		HMAC struct {
			Secret string
		}
	}

	Notifications struct {
		InitialDelay time.Duration `mapstructure:"initial_delay"`
		Interval     time.Duration
		BatchSize    int `mapstructure:"batch_size"`
		Delivery     string
		Timezone     string
	}

	Sentry struct {
		DSN string
	}

	AMQP struct {
		URL string
	}

	Redis struct {
		Addr     string
		Password string
		LockTTL  time.Duration `mapstructure:"lock_ttl"`
	}
}

// Delivery modes for the flush job
const (
	DeliveryAtLeastOnce = "at-least-once"
	DeliveryClaimFirst  = "claim-first"
)
