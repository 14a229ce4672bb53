package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// teacherConfidence is the fixed confidence attached to a well-formed
// teacher verdict.
const teacherConfidence = 1.0

// GeminiClient is an implementation of the TeacherClient interface using Google Gemini
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// classificationResponse represents the structured response from the LLM
type classificationResponse struct {
	Category       string   `json:"category"`
	Priority       string   `json:"priority"`
	Sentiment      string   `json:"sentiment"`
	Topics         []string `json:"topics"`
	ActionRequired bool     `json:"action_required"`
	Summary        string   `json:"summary"`
}

// NewGeminiClient creates a new Gemini teacher client
func NewGeminiClient(
	client *genai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *GeminiClient {
	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat: `You are an email triage assistant. Classify the following email.
Respond with a JSON object containing:
- category: one of personal, work, newsletter, notification, spam, security, billing, meetings, other
- priority: one of high, medium, low
- sentiment: one of positive, neutral, negative
- topics: array of at most 3 short topic strings
- action_required: boolean (true if the recipient has to act on this email)
- summary: one short sentence summarizing the email

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`,
	}
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Judge classifies an email message
func (c *GeminiClient) Judge(ctx context.Context, msg *core.Message) (*core.ClassificationResult, error) {
	body := c.textProcessor.ProcessText(msg.BodyExcerpt, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.From, msg.Subject, body)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	var responseText string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText += string(text)
		}
	}
	if responseText == "" {
		return nil, fmt.Errorf("no text content in Gemini response")
	}

	return parseResponse(msg.ID, responseText)
}

// parseResponse validates the raw LLM output against the closed enums.
func parseResponse(messageID, responseText string) (*core.ClassificationResult, error) {
	var parsed classificationResponse
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		salvaged, ok := utils.ExtractJSONObject(responseText)
		if !ok {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(salvaged), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	result, err := core.NewClassificationResult(
		messageID,
		parsed.Category,
		parsed.Priority,
		parsed.Sentiment,
		parsed.Topics,
		parsed.ActionRequired,
		parsed.Summary,
	)
	if err != nil {
		return nil, fmt.Errorf("malformed teacher output: %w", err)
	}
	result.Source = core.SourceLLM
	result.Confidence = teacherConfidence
	result.ProcessingID = uuid.NewString()
	return result, nil
}
