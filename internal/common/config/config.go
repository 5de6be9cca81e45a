package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Ledger struct {
		// Mode selects the gateway implementation: "http" talks to a node,
		// "memory" runs an embedded ledger for local development.
		Mode      string `env:"LEDGER_MODE" envDefault:"http"`
		BaseURL   string `env:"LEDGER_BASE_URL" envDefault:"http://localhost:8899"`
		ProgramID string `env:"LEDGER_PROGRAM_ID" envDefault:"3QX9pzZwbd7uNmvBqiPW8YAV8ECV9v2v77L5pwGaSRAg"`

		RequestTimeout time.Duration `env:"LEDGER_REQUEST_TIMEOUT" envDefault:"10s"`

		// Confirmation polling after a submitted operation.
		ConfirmRounds  int           `env:"LEDGER_CONFIRM_ROUNDS" envDefault:"5"`
		ConfirmSpacing time.Duration `env:"LEDGER_CONFIRM_SPACING" envDefault:"2s"`
	}

	Reconcile struct {
		Retries  int           `env:"RECONCILE_RETRIES" envDefault:"3"`
		Backoff  time.Duration `env:"RECONCILE_BACKOFF" envDefault:"2s"`
		Interval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	}

	Signer struct {
		// Path to the ed25519 key file of the active identity. Empty means no
		// identity is attached and state-changing operations are unavailable.
		KeyFile string `env:"SIGNER_KEY_FILE" envDefault:""`
	}

	Leaderboard struct {
		CacheTTL time.Duration `env:"LEADERBOARD_CACHE_TTL" envDefault:"60s"`
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// Игнорируем ошибку, если .env файл не найден
		// В production окружении переменные могут быть установлены напрямую
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
