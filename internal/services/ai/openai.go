package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/studyhub/dashboard-api/internal/models"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// MaxSuggestions caps the number of suggestions returned
	MaxSuggestions = 5

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements the InsightsProvider interface using OpenAI's API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// StudyInsights summarizes a dashboard snapshot into study suggestions
func (p *OpenAIProvider) StudyInsights(ctx context.Context, snap *models.DashboardStats) (*Insights, error) {
	prompt := buildInsightsPrompt(snap)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are a study coach that reviews a student's activity statistics and suggests concrete ways to study more effectively. Respond with valid JSON only."),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "study_insights"),
			zap.String("model", p.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("user_id", snap.UserID.String()),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if p.logger != nil && p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", "study_insights"),
				zap.String("model", p.model),
				zap.Error(err),
				zap.Duration("latency_ms", latency),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to generate insights: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to generate insights: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	insights, err := parseInsightsResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	if p.logger != nil && p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "study_insights"),
			zap.String("model", p.model),
			zap.Int("suggestion_count", len(insights.Suggestions)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return insights, nil
}

// buildInsightsPrompt renders the snapshot into a compact prompt
func buildInsightsPrompt(snap *models.DashboardStats) string {
	var b strings.Builder
	b.WriteString("Here are a student's activity statistics:\n")
	fmt.Fprintf(&b, "- notes: %d (%d AI-assisted)\n", snap.TotalNotes, snap.NotesWithAI)
	fmt.Fprintf(&b, "- recordings: %d, documents: %d, chat messages: %d\n",
		snap.TotalRecordings, snap.TotalDocuments, snap.TotalMessages)
	fmt.Fprintf(&b, "- schedule items: %d, quizzes taken: %d\n",
		snap.TotalScheduleItems, snap.TotalQuizzes)
	fmt.Fprintf(&b, "- current streak: %d days\n", snap.StreakDays)
	fmt.Fprintf(&b, "- average notes per day: %.1f\n", snap.AvgNotesPerDay)
	fmt.Fprintf(&b, "- average study minutes per day: %.0f\n", snap.AvgDailyStudyMinutes)
	fmt.Fprintf(&b, "- engagement score: %.0f/100\n", snap.EngagementScore)

	if len(snap.TopCategories) > 0 {
		b.WriteString("- most active areas:")
		for i, c := range snap.TopCategories {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s (%d)", c.Category, c.Count)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nRespond with JSON: {\"summary\": \"one sentence\", \"suggestions\": [\"...\"]} with at most %d suggestions.\n", MaxSuggestions)
	return b.String()
}

// parseInsightsResponse parses the model's JSON reply, tolerating stray
// text around the JSON object
func parseInsightsResponse(content string) (*Insights, error) {
	var insights Insights
	raw := content
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		if len(raw) > 0 && raw[0] != '{' {
			start := bytes.Index([]byte(raw), []byte("{"))
			end := bytes.LastIndex([]byte(raw), []byte("}"))
			if start != -1 && end != -1 && end > start {
				raw = raw[start : end+1]
			}
		}
		if err := json.Unmarshal([]byte(raw), &insights); err != nil {
			return nil, fmt.Errorf("failed to parse insights response: %w", err)
		}
	}

	if len(insights.Suggestions) > MaxSuggestions {
		insights.Suggestions = insights.Suggestions[:MaxSuggestions]
	}
	return &insights, nil
}

// Ensure OpenAIProvider satisfies the interface
var _ InsightsProvider = (*OpenAIProvider)(nil)
