package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// teacherConfidence is the fixed confidence attached to a well-formed
// teacher verdict.
const teacherConfidence = 1.0

// OpenAIClient is an implementation of the TeacherClient interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
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

// NewOpenAIClient creates a new OpenAI teacher client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
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

// Judge classifies an email message
func (c *OpenAIClient) Judge(ctx context.Context, msg *core.Message) (*core.ClassificationResult, error) {
	body := c.textProcessor.ProcessText(msg.BodyExcerpt, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.From, msg.Subject, body)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an email triage assistant. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}
	responseFormat := openai.ChatCompletionResponseFormat{
		Type: "json",
	}
	req.ResponseFormat = &responseFormat

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	result, err := parseResponse(msg.ID, resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	result.ProcessingID = resp.ID
	return result, nil
}

// parseResponse validates the raw LLM output against the closed enums.
// Anything that does not parse is a teacher failure, not a usable verdict.
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
