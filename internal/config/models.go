package config

import "time"

// TeacherConfig represents the configuration for the teacher oracle
type TeacherConfig struct {
	Provider string
	Timeout  time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// PipelineConfig represents the configuration for the pipeline coordinator
// and its work queue
type PipelineConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBackoff   time.Duration
	RuleConfidence float64
}

// ClassifierConfig represents the configuration for the local learned
// classifier
type ClassifierConfig struct {
	MinSamples    int64
	MinAccuracy   float64
	AccuracyAlpha float64
	LearningRate  float64
	PersistEvery  int
}

// ConfidenceConfig represents the configuration for the confidence scorer
type ConfidenceConfig struct {
	AccuracyWeight        float64
	SenderWeight          float64
	SubjectWeight         float64
	BodyLengthWeight      float64
	TimeOfDayWeight       float64
	AutoThreshold         float64
	SuggestThreshold      float64
	TeacherFailurePenalty float64
	NeutralSenderPrior    float64
}

// StoreConfig represents the configuration for the durable store
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// CacheConfig represents the configuration for the fast cache tier
type CacheConfig struct {
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// SourceConfig represents the configuration for the ingestion source
type SourceConfig struct {
	Type          string
	ListenAddress string
	MaxBodySize   int
}

// GetTeacher returns the teacher oracle configuration
func (c *Config) GetTeacher() (TeacherConfig, error) {
	timeout, err := c.GetDuration("teacher.timeout")
	if err != nil {
		return TeacherConfig{}, err
	}
	return TeacherConfig{
		Provider: c.GetString("teacher.provider"),
		Timeout:  timeout,
	}, nil
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() (PipelineConfig, error) {
	backoff, err := c.GetDuration("pipeline.retry_backoff")
	if err != nil {
		return PipelineConfig{}, err
	}
	return PipelineConfig{
		Workers:        c.GetInt("pipeline.workers"),
		QueueSize:      c.GetInt("pipeline.queue_size"),
		MaxAttempts:    c.GetInt("pipeline.max_attempts"),
		RetryBackoff:   backoff,
		RuleConfidence: c.GetFloat64("pipeline.rule_confidence"),
	}, nil
}

// GetClassifier returns the local classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		MinSamples:    c.GetInt64("classifier.min_samples"),
		MinAccuracy:   c.GetFloat64("classifier.min_accuracy"),
		AccuracyAlpha: c.GetFloat64("classifier.accuracy_alpha"),
		LearningRate:  c.GetFloat64("classifier.learning_rate"),
		PersistEvery:  c.GetInt("classifier.persist_every"),
	}
}

// GetConfidence returns the confidence scorer configuration
func (c *Config) GetConfidence() ConfidenceConfig {
	return ConfidenceConfig{
		AccuracyWeight:        c.GetFloat64("confidence.accuracy_weight"),
		SenderWeight:          c.GetFloat64("confidence.sender_weight"),
		SubjectWeight:         c.GetFloat64("confidence.subject_weight"),
		BodyLengthWeight:      c.GetFloat64("confidence.body_length_weight"),
		TimeOfDayWeight:       c.GetFloat64("confidence.time_of_day_weight"),
		AutoThreshold:         c.GetFloat64("confidence.auto_threshold"),
		SuggestThreshold:      c.GetFloat64("confidence.suggest_threshold"),
		TeacherFailurePenalty: c.GetFloat64("confidence.teacher_failure_penalty"),
		NeutralSenderPrior:    c.GetFloat64("confidence.neutral_sender_prior"),
	}
}

// GetStore returns the durable store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() (CacheConfig, error) {
	ttl, err := c.GetDuration("cache.ttl")
	if err != nil {
		return CacheConfig{}, err
	}
	cleanup, err := c.GetDuration("cache.cleanup_frequency")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		TTL:              ttl,
		CleanupFrequency: cleanup,
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}, nil
}

// GetSource returns the ingestion source configuration
func (c *Config) GetSource() SourceConfig {
	return SourceConfig{
		Type:          c.GetString("source.type"),
		ListenAddress: c.GetString("source.listen_address"),
		MaxBodySize:   c.GetInt("source.max_body_size"),
	}
}
