package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/adapters/bedrock"
	"github.com/mikey/llm-mail-classifier/internal/adapters/gemini"
	"github.com/mikey/llm-mail-classifier/internal/adapters/openai"
	"github.com/mikey/llm-mail-classifier/internal/config"
	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// TeacherFactory creates teacher oracle clients
type TeacherFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewTeacherFactory creates a new teacher factory
func NewTeacherFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *TeacherFactory {
	return &TeacherFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateTeacherClient creates a new teacher client based on the configuration
func (f *TeacherFactory) CreateTeacherClient() (core.TeacherClient, error) {
	teacherCfg, err := f.cfg.GetTeacher()
	if err != nil {
		return nil, fmt.Errorf("invalid teacher configuration: %w", err)
	}

	switch teacherCfg.Provider {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported teacher provider: %s", teacherCfg.Provider)
	}
}
