package config

import "fmt"

// Validate checks that the configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database: path is required for sqlite")
	}
	if c.Credentials.Dir == "" {
		return fmt.Errorf("credentials: dir is required")
	}
	if c.Credentials.BurnThreshold <= 0 {
		return fmt.Errorf("credentials: burn_threshold must be positive")
	}
	if c.Browser.SessionRoot == "" {
		return fmt.Errorf("browser: session_root is required")
	}
	if c.Queue.ResultCap <= 0 {
		return fmt.Errorf("queue: result_cap must be positive")
	}
	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue: poll_interval must be positive")
	}
	if c.Scheduler.StopTimeout <= 0 {
		return fmt.Errorf("scheduler: stop_timeout must be positive")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required when enabled")
	}
	return nil
}
