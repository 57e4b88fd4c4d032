package main

import (
	"sync"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/config"
	"Showtimes_Sync/internal/logging"
)

// commandContext 命令之间共享的配置与日志，按需加载一次
type commandContext struct {
	configFlag *string

	mu     sync.Mutex
	cfg    *config.Config
	path   string
	exists bool
	logger *zap.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}
	var path string
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.path = resolved
	c.exists = exists
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}
