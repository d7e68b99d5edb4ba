package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/ai"
	"scribe/internal/catalog"
	"scribe/internal/config"
	"scribe/internal/dedup"
	"scribe/internal/enrichcache"
	"scribe/internal/logging"
	"scribe/internal/market"
	"scribe/internal/notifications"
	"scribe/internal/publish"
	"scribe/internal/runlock"
	"scribe/internal/schedule"
	"scribe/internal/sheet"
	"scribe/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// runtime bundles everything a pipeline run needs.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *catalog.Store
	cache  *enrichcache.Cache
	orch   *workflow.Orchestrator
	lock   *runlock.Lock
}

// Close releases the runtime's owned resources.
func (r *runtime) Close() {
	if r.cache != nil {
		_ = r.cache.Close()
	}
}

// buildRuntime wires the full pipeline from configuration.
func (c *commandContext) buildRuntime() (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	gate := sheet.NewGate(
		cfg.Sheet.RequestsPerMin,
		time.Duration(cfg.Sheet.MinIntervalMS)*time.Millisecond,
		time.Duration(cfg.Sheet.MaxWaitSeconds)*time.Second,
	)
	sheetClient, err := sheet.New(cfg.Sheet.BaseURL, cfg.Sheet.SpreadsheetID, cfg.Sheet.APIKey, sheet.WithGate(gate))
	if err != nil {
		return nil, err
	}
	store, err := catalog.NewStore(sheetClient, cfg.Sheet.ProductsSheet, cfg.Sheet.KeywordsSheet)
	if err != nil {
		return nil, err
	}

	index := dedup.NewIndex(store, time.Duration(cfg.Sheet.DedupTTLSeconds)*time.Second, logger)

	marketClient, err := market.NewClient(cfg.Market)
	if err != nil {
		return nil, err
	}
	aiClient, err := ai.NewClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	publisher, err := publish.NewClient(cfg.Publisher)
	if err != nil {
		return nil, err
	}
	cache, err := enrichcache.Open(cfg)
	if err != nil {
		return nil, err
	}

	orch, err := workflow.New(cfg, workflow.Deps{
		Store:     store,
		Dedup:     index,
		Scheduler: schedule.New(time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute),
		Market:    marketClient,
		AI:        aiClient,
		Publisher: publisher,
		Cache:     cache,
		Notifier:  notifications.NewService(cfg),
	}, logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	lock, err := runlock.New(cfg)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		cache:  cache,
		orch:   orch,
		lock:   lock,
	}, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
