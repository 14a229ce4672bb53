package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/config"
	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/factory"
	"github.com/mikey/llm-mail-classifier/internal/logging"
	"github.com/mikey/llm-mail-classifier/internal/rules"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

var (
	// Teacher provider flags
	provider    = flag.String("provider", "openai", "Teacher provider (bedrock, gemini, openai)")
	maxTokens   = flag.Int("max-tokens", 1000, "Maximum tokens for teacher response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for teacher generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for teacher generation")
	maxBodySize = flag.Int("max-body-size", 4096, "Maximum email body size to send to the teacher")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4", "OpenAI model name")

	// Classification flags
	ruleConfidence = flag.Float64("rule-confidence", 0.7, "Confidence assigned to rule-based results")
	useTeacher     = flag.Bool("teacher", false, "Also ask the teacher oracle for a verdict")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	subject := msg.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}

	textProcessor := utils.NewTextProcessor(logger)

	message := &core.Message{
		ID:          strings.Trim(msg.Header.Get("Message-ID"), "<> \t"),
		From:        from,
		Subject:     subject,
		BodyExcerpt: textProcessor.ProcessText(string(bodyBytes), cfg.GetInt("source.max_body_size")),
		ReceivedAt:  time.Now(),
	}
	if t, err := msg.Header.Date(); err == nil {
		message.ReceivedAt = t
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(bodyBytes))
	fmt.Printf("\n")

	// Rule-based classification always runs; it is the provisional verdict
	// the daemon would store before the teacher weighs in.
	ruleEngine := rules.NewEngine(cfg.GetFloat64("pipeline.rule_confidence"))

	startTime := time.Now()
	ruleResult := ruleEngine.Classify(message)

	fmt.Printf("=== Rule Verdict ===\n")
	printResult(ruleResult)
	fmt.Printf("Processing time: %v\n", time.Since(startTime))

	if !*useTeacher {
		return
	}

	// Teacher verdict
	teacherFactory := factory.NewTeacherFactory(cfg, logger, textProcessor)
	teacherClient, err := teacherFactory.CreateTeacherClient()
	if err != nil {
		logger.Fatal("Failed to create teacher client", zap.Error(err))
	}

	fmt.Printf("\n=== Teacher Verdict ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("teacher.provider"))

	startTime = time.Now()
	teacherResult, err := teacherClient.Judge(context.Background(), message)
	if err != nil {
		logger.Fatal("Failed to get teacher verdict", zap.Error(err))
	}
	printResult(teacherResult)
	fmt.Printf("Processing time: %v\n", time.Since(startTime))

	if teacherResult.Category == ruleResult.Category {
		fmt.Printf("\nTeacher agrees with the rule verdict\n")
	} else {
		fmt.Printf("\nTeacher disagrees: %s vs %s\n", teacherResult.Category, ruleResult.Category)
	}

	// Close any resources that need closing
	if closer, ok := teacherClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close teacher client", zap.Error(err))
		}
	}
}

func printResult(result *core.ClassificationResult) {
	fmt.Printf("Category: %s\n", result.Category)
	fmt.Printf("Priority: %s\n", result.Priority)
	fmt.Printf("Sentiment: %s\n", result.Sentiment)
	fmt.Printf("Topics: %s\n", strings.Join(result.Topics, ", "))
	fmt.Printf("Action required: %t\n", result.ActionRequired)
	fmt.Printf("Summary: %s\n", result.Summary)
	fmt.Printf("Confidence: %.4f\n", result.Confidence)
	fmt.Printf("Source: %s\n", result.Source)
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	// Set teacher provider
	v.Set("teacher.provider", *provider)

	// Set provider-specific configuration
	switch *provider {
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	}

	// Set rule confidence
	v.Set("pipeline.rule_confidence", *ruleConfidence)

	return config.NewFromViper(v)
}
