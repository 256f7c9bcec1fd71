package config

import (
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"aster-api"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`

	// Path to the sectioned CSV planning export loaded at startup
	DataFilePath string `env:"DATA_FILE_PATH" env-default:"data/planning_export.csv"`

	// Schedule horizon start (RFC 3339); empty selects the built-in default
	ScheduleStart string `env:"SCHEDULE_START" env-default:"2025-08-22T06:00:00Z"`

	// Delay added to late-part on-dock dates before release, in days
	LatePartDelayDays float64 `env:"LATE_PART_DELAY_DAYS" env-default:"1.0"`

	// Allocator settings
	// Candidate start instants probed per allocation before giving up
	AllocatorMaxIterations int `env:"ALLOCATOR_MAX_ITERATIONS" env-default:"5000"`

	// Retry settings
	// Allocation attempts per task before it is reported unscheduled
	RetryMaxAttempts int `env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	// Priority penalty added on each retry
	RetryPriorityPenalty float64 `env:"RETRY_PRIORITY_PENALTY" env-default:"0.1"`

	// Entries with slack below this are flagged critical, in hours
	CriticalSlackHours float64 `env:"CRITICAL_SLACK_HOURS" env-default:"24"`

	// Optimizer settings
	// Annealing trial budget for the targeted search
	OptimizerMaxTrials int `env:"OPTIMIZER_MAX_TRIALS" env-default:"60"`
	// Neighbor configurations evaluated in parallel per annealing step
	OptimizerNeighbors int `env:"OPTIMIZER_NEIGHBORS" env-default:"4"`
	// Initial annealing temperature
	OptimizerInitialTemperature float64 `env:"OPTIMIZER_INITIAL_TEMPERATURE" env-default:"1000"`
	// Cooling factor applied each annealing step
	OptimizerCooling float64 `env:"OPTIMIZER_COOLING" env-default:"0.95"`
	// Stuck iterations before the temperature reheats to half initial
	OptimizerReheatAfter int `env:"OPTIMIZER_REHEAT_AFTER" env-default:"30"`
}

// Load reads the environment (and a .env file when present) into a Config.
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}
	return &cfg, nil
}

// ScheduleStartTime parses the configured horizon start.
func (c *Config) ScheduleStartTime() (time.Time, error) {
	return time.Parse(time.RFC3339, c.ScheduleStart)
}
