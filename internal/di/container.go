package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/confidence"
	"github.com/mikey/llm-mail-classifier/internal/config"
	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/factory"
	"github.com/mikey/llm-mail-classifier/internal/learned"
	"github.com/mikey/llm-mail-classifier/internal/logging"
	"github.com/mikey/llm-mail-classifier/internal/rules"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTeacherFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewSourceFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register teacher client
	if err := container.Provide(func(f *factory.TeacherFactory) (core.TeacherClient, error) {
		return f.CreateTeacherClient()
	}); err != nil {
		return nil, err
	}

	// Register durable store and classifier state store
	if err := container.Provide(func(f *factory.StoreFactory) (core.ResultStore, core.StateStore, error) {
		return f.CreateStores()
	}); err != nil {
		return nil, err
	}

	// Register result cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.ResultCache, error) {
		return f.CreateResultCache()
	}); err != nil {
		return nil, err
	}

	// Register tiered lookup
	if err := container.Provide(func(
		store core.ResultStore,
		resultCache core.ResultCache,
		f *factory.CacheFactory,
		logger *zap.Logger,
	) (*core.TieredLookup, error) {
		ttl, err := f.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		return core.NewTieredLookup(store, resultCache, ttl, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register rule engine
	if err := container.Provide(func(cfg *config.Config) (core.RuleEngine, error) {
		pipelineCfg, err := cfg.GetPipeline()
		if err != nil {
			return nil, err
		}
		return rules.NewEngine(pipelineCfg.RuleConfidence), nil
	}); err != nil {
		return nil, err
	}

	// Register confidence scorer
	if err := container.Provide(func(cfg *config.Config) core.ConfidenceScorer {
		confCfg := cfg.GetConfidence()
		return confidence.NewScorer(
			confidence.Weights{
				Accuracy:      confCfg.AccuracyWeight,
				SenderHistory: confCfg.SenderWeight,
				SubjectMatch:  confCfg.SubjectWeight,
				BodyLength:    confCfg.BodyLengthWeight,
				TimeOfDay:     confCfg.TimeOfDayWeight,
			},
			confCfg.AutoThreshold,
			confCfg.SuggestThreshold,
			confCfg.NeutralSenderPrior,
		)
	}); err != nil {
		return nil, err
	}

	// Register learned classifier
	if err := container.Provide(func(
		cfg *config.Config,
		stateStore core.StateStore,
		logger *zap.Logger,
	) (*learned.Classifier, error) {
		classifierCfg := cfg.GetClassifier()
		confCfg := cfg.GetConfidence()
		return learned.NewClassifier(context.Background(), learned.Options{
			MinSamples:      classifierCfg.MinSamples,
			MinAccuracy:     classifierCfg.MinAccuracy,
			ReviewThreshold: confCfg.SuggestThreshold,
			AccuracyAlpha:   classifierCfg.AccuracyAlpha,
			LearningRate:    classifierCfg.LearningRate,
			PersistEvery:    classifierCfg.PersistEvery,
		}, stateStore, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(c *learned.Classifier) core.LocalClassifier {
		return c
	}); err != nil {
		return nil, err
	}

	// Register work queue
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*core.WorkQueue, error) {
		pipelineCfg, err := cfg.GetPipeline()
		if err != nil {
			return nil, err
		}
		return core.NewWorkQueue(
			pipelineCfg.QueueSize,
			pipelineCfg.MaxAttempts,
			pipelineCfg.RetryBackoff,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register training loop
	if err := container.Provide(func(
		classifier core.LocalClassifier,
		teacher core.TeacherClient,
		ruleEngine core.RuleEngine,
		scorer core.ConfidenceScorer,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.TrainingLoop, error) {
		teacherCfg, err := cfg.GetTeacher()
		if err != nil {
			return nil, err
		}
		confCfg := cfg.GetConfidence()
		return core.NewTrainingLoop(
			classifier,
			teacher,
			ruleEngine,
			scorer,
			teacherCfg.Timeout,
			confCfg.TeacherFailurePenalty,
			confCfg.SuggestThreshold,
			logger,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register pipeline coordinator
	if err := container.Provide(func(
		lookup *core.TieredLookup,
		ruleEngine core.RuleEngine,
		training *core.TrainingLoop,
		queue *core.WorkQueue,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.Pipeline, error) {
		pipelineCfg, err := cfg.GetPipeline()
		if err != nil {
			return nil, err
		}
		return core.NewPipeline(lookup, ruleEngine, training, queue, pipelineCfg.Workers, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register message source
	if err := container.Provide(func(f *factory.SourceFactory, pipeline *core.Pipeline) (core.MessageSource, error) {
		return f.CreateMessageSource(pipeline)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
