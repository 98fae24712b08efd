package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.DatabasePath == "" {
		return errors.New("paths.database_path must be set")
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if !slices.Contains(OnErrorModes, c.Execution.OnError) {
		return fmt.Errorf("execution.on_error must be one of %v, got %q", OnErrorModes, c.Execution.OnError)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 1 {
		return errors.New("workers.count must be at least 1")
	}
	if c.Workers.QueuePollInterval < 1 {
		return errors.New("workers.queue_poll_interval must be at least 1 second")
	}
	if c.Workers.HeartbeatInterval < 1 || c.Workers.HeartbeatInterval > 10 {
		return errors.New("workers.heartbeat_interval must be between 1 and 10 seconds")
	}
	if c.Workers.HeartbeatTimeout <= c.Workers.HeartbeatInterval {
		return errors.New("workers.heartbeat_timeout must exceed workers.heartbeat_interval")
	}
	if c.Workers.JobRetentionDays < 0 {
		return errors.New("workers.job_retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if !slices.Contains(HardwareAccelModes, c.Transcode.HardwareAccel) {
		return fmt.Errorf("transcode.hardware_acceleration must be one of %v, got %q", HardwareAccelModes, c.Transcode.HardwareAccel)
	}
	if c.Transcode.TimeoutSeconds < 0 {
		return errors.New("transcode.transcode_timeout must not be negative")
	}
	if c.Transcode.CPUCores < 0 {
		return errors.New("transcode.cpu_cores must not be negative")
	}
	return nil
}
