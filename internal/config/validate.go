package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSheet(); err != nil {
		return err
	}
	if err := c.validateMarket(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePublisher(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSheet() error {
	if c.Sheet.SpreadsheetID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		return fmt.Errorf("sheet.spreadsheet_id is required. Edit %s (create with 'scribe config new')", defaultPath)
	}
	if err := ensurePositiveMap(map[string]int{
		"sheet.requests_per_minute": c.Sheet.RequestsPerMin,
		"sheet.min_interval_ms":     c.Sheet.MinIntervalMS,
		"sheet.max_wait_seconds":    c.Sheet.MaxWaitSeconds,
		"sheet.dedup_ttl_seconds":   c.Sheet.DedupTTLSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMarket() error {
	if strings.TrimSpace(c.Market.BaseURL) == "" {
		return errors.New("market.base_url must be set")
	}
	if c.Market.TimeoutSeconds <= 0 {
		return errors.New("market.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required. Set LLM_API_KEY or OPENROUTER_API_KEY, or edit the config file")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePublisher() error {
	if strings.TrimSpace(c.Publisher.BaseURL) == "" {
		return errors.New("publisher.base_url must be set")
	}
	if strings.TrimSpace(c.Publisher.Username) == "" {
		return errors.New("publisher.username must be set")
	}
	if strings.TrimSpace(c.Publisher.AppPassword) == "" {
		return errors.New("publisher.app_password must be set (or set PUBLISHER_APP_PASSWORD)")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.interval_minutes":       c.Scheduler.IntervalMinutes,
		"scheduler.batch_interval_minutes": c.Scheduler.BatchIntervalMinutes,
		"scheduler.max_slots_per_day":      c.Scheduler.MaxSlotsPerDay,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
