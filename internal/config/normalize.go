package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if trimmed := strings.TrimSpace(c.Paths.TempDir); trimmed != "" {
		if c.Paths.TempDir, err = expandPath(trimmed); err != nil {
			return err
		}
	} else {
		c.Paths.TempDir = ""
	}

	c.Transcode.HardwareAccel = strings.ToLower(strings.TrimSpace(c.Transcode.HardwareAccel))
	if c.Transcode.HardwareAccel == "" {
		c.Transcode.HardwareAccel = "none"
	}
	c.Execution.OnError = strings.ToLower(strings.TrimSpace(c.Execution.OnError))
	if c.Execution.OnError == "" {
		c.Execution.OnError = defaultOnError
	}
	if len(c.Execution.CommentaryPatterns) == 0 {
		c.Execution.CommentaryPatterns = append([]string{}, DefaultCommentaryPatterns...)
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
