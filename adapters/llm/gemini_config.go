package llm

import (
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/satriahrh/lexvoice/domain/repositories"
)

const (
	defaultModel          = "gemini-2.5-flash-lite"
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds configuration for the Gemini adapter. Sampling
// parameters arrive per request as repositories.GenerationConfig.
type GeminiConfig struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// contentConfig translates generation bounds, leaving zero values to the
// provider
func contentConfig(config repositories.GenerationConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		MaxOutputTokens: config.MaxOutputTokens,
	}
	if config.Temperature > 0 {
		out.Temperature = genai.Ptr(config.Temperature)
	}
	if config.TopP > 0 {
		out.TopP = genai.Ptr(config.TopP)
	}
	if config.TopK > 0 {
		out.TopK = genai.Ptr(config.TopK)
	}
	return out
}

// classifyError marks provider throttling with repositories.ErrRateLimited
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isThrottled(apiErr) {
		return fmt.Errorf("%w: %v", repositories.ErrRateLimited, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isThrottled(*apiErrPtr) {
		return fmt.Errorf("%w: %v", repositories.ErrRateLimited, err)
	}
	return err
}

func isThrottled(apiErr genai.APIError) bool {
	return apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED"
}

// responseText concatenates the text parts of the first candidate
func responseText(response *genai.GenerateContentResponse) (string, error) {
	if response == nil || len(response.Candidates) == 0 ||
		response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content generated")
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
