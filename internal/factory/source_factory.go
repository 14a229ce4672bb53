package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/adapters/source"
	"github.com/mikey/llm-mail-classifier/internal/config"
	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// SourceFactory creates message sources based on configuration
type SourceFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *SourceFactory {
	return &SourceFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateMessageSource creates a message source feeding the given pipeline
func (f *SourceFactory) CreateMessageSource(pipeline *core.Pipeline) (core.MessageSource, error) {
	sourceCfg := f.cfg.GetSource()

	switch sourceCfg.Type {
	case "smtp":
		return source.NewSMTPSource(
			pipeline,
			f.logger,
			sourceCfg.ListenAddress,
			sourceCfg.MaxBodySize,
			f.textProcessor,
		), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}
