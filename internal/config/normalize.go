package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSheet()
	c.normalizeMarket()
	c.normalizeLLM()
	c.normalizePublisher()
	c.normalizeScheduler()
	c.normalizeWorkflow()
	c.normalizePrefilter()
	if err := c.normalizeEnrichCache(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSheet() {
	c.Sheet.BaseURL = strings.TrimRight(strings.TrimSpace(c.Sheet.BaseURL), "/")
	if c.Sheet.BaseURL == "" {
		c.Sheet.BaseURL = defaultSheetBaseURL
	}
	c.Sheet.SpreadsheetID = strings.TrimSpace(c.Sheet.SpreadsheetID)
	c.Sheet.APIKey = strings.TrimSpace(c.Sheet.APIKey)
	if c.Sheet.APIKey == "" {
		if value, ok := os.LookupEnv("SHEETS_API_KEY"); ok {
			c.Sheet.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Sheet.ProductsSheet) == "" {
		c.Sheet.ProductsSheet = defaultProductsSheet
	}
	if strings.TrimSpace(c.Sheet.KeywordsSheet) == "" {
		c.Sheet.KeywordsSheet = defaultKeywordsSheet
	}
	if c.Sheet.RequestsPerMin <= 0 {
		c.Sheet.RequestsPerMin = defaultRequestsPerMinute
	}
	if c.Sheet.MinIntervalMS <= 0 {
		c.Sheet.MinIntervalMS = defaultMinIntervalMS
	}
	if c.Sheet.MaxWaitSeconds <= 0 {
		c.Sheet.MaxWaitSeconds = defaultMaxWaitSeconds
	}
	if c.Sheet.DedupTTLSeconds <= 0 {
		c.Sheet.DedupTTLSeconds = defaultDedupTTLSeconds
	}
}

func (c *Config) normalizeMarket() {
	c.Market.BaseURL = strings.TrimRight(strings.TrimSpace(c.Market.BaseURL), "/")
	c.Market.APIID = strings.TrimSpace(c.Market.APIID)
	if c.Market.APIID == "" {
		if value, ok := os.LookupEnv("MARKET_API_ID"); ok {
			c.Market.APIID = strings.TrimSpace(value)
		}
	}
	c.Market.AffiliateID = strings.TrimSpace(c.Market.AffiliateID)
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = defaultMarketTimeoutSeconds
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.ImageModel = strings.TrimSpace(c.LLM.ImageModel)
	if c.LLM.ImageModel == "" {
		c.LLM.ImageModel = c.LLM.Model
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizePublisher() {
	c.Publisher.BaseURL = strings.TrimRight(strings.TrimSpace(c.Publisher.BaseURL), "/")
	c.Publisher.Username = strings.TrimSpace(c.Publisher.Username)
	c.Publisher.AppPassword = strings.TrimSpace(c.Publisher.AppPassword)
	if c.Publisher.AppPassword == "" {
		if value, ok := os.LookupEnv("PUBLISHER_APP_PASSWORD"); ok {
			c.Publisher.AppPassword = strings.TrimSpace(value)
		}
	}
	if c.Publisher.TimeoutSeconds <= 0 {
		c.Publisher.TimeoutSeconds = defaultPublisherTimeout
	}
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.IntervalMinutes <= 0 {
		c.Scheduler.IntervalMinutes = defaultIntervalMinutes
	}
	if c.Scheduler.BatchIntervalMinutes <= 0 {
		c.Scheduler.BatchIntervalMinutes = defaultBatchIntervalMinutes
	}
	if c.Scheduler.MaxSlotsPerDay <= 0 {
		c.Scheduler.MaxSlotsPerDay = defaultMaxSlotsPerDay
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxJobsPerRun < 0 {
		c.Workflow.MaxJobsPerRun = 0
	}
	if c.Workflow.MaxKeywordsPerRun <= 0 {
		c.Workflow.MaxKeywordsPerRun = defaultMaxKeywordsPerRun
	}
	if c.Workflow.RetryAttempts <= 0 {
		c.Workflow.RetryAttempts = defaultRetryAttempts
	}
	if c.Workflow.RetryAttempts > 3 {
		c.Workflow.RetryAttempts = 3
	}
}

func (c *Config) normalizePrefilter() {
	rules := make([]PrefilterRule, 0, len(c.Prefilter.Rules))
	for _, rule := range c.Prefilter.Rules {
		rule.Work = strings.TrimSpace(rule.Work)
		if rule.Work == "" {
			continue
		}
		aliases := make([]string, 0, len(rule.Aliases))
		for _, alias := range rule.Aliases {
			if alias = strings.TrimSpace(alias); alias != "" {
				aliases = append(aliases, alias)
			}
		}
		rule.Aliases = aliases
		rule.Reason = strings.TrimSpace(rule.Reason)
		rules = append(rules, rule)
	}
	c.Prefilter.Rules = rules
}

func (c *Config) normalizeEnrichCache() error {
	if strings.TrimSpace(c.EnrichCache.Path) == "" {
		c.EnrichCache.Path = filepath.Join(c.Paths.DataDir, "enrich_cache.db")
	}
	var err error
	if c.EnrichCache.Path, err = expandPath(c.EnrichCache.Path); err != nil {
		return fmt.Errorf("enrich_cache.path: %w", err)
	}
	if c.EnrichCache.TTLHours <= 0 {
		c.EnrichCache.TTLHours = defaultEnrichCacheTTLHours
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
