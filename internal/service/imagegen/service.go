package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChaseRain/deckstream/internal/infra/httpclient"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Service struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *httpclient.Client
	logger     *logger.Logger
}

func New(apiKey, model, baseURL string, client *httpclient.Client, log *logger.Logger) *Service {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Service{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		logger:     logger.OrNop(log),
	}
}

// Generate returns the image as a data URI, or "" when the provider answered
// without an image. Throttling is reported as an ErrCodeRateLimited error.
func (s *Service) Generate(ctx context.Context, prompt, style, aspectRatio string) (string, error) {
	if s.apiKey == "" {
		return "", errors.New(errors.ErrCodeNotInitialized, "image generation API key is not configured")
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{
						"text": s.buildImagePrompt(prompt, style),
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"TEXT", "IMAGE"},
			"imageConfig": map[string]string{
				"aspectRatio": aspectRatio,
			},
		},
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", s.baseURL, s.model, s.apiKey)

	resp, err := s.httpClient.PostJSON(ctx, url, bodyBytes)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeImageGenAPI, "image generation API request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to read response")
	}

	if isRateLimited(resp.StatusCode, respBody) {
		return "", errors.New(errors.ErrCodeRateLimited, "image generation quota exhausted")
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("image gen API error", "status", resp.StatusCode, "body", string(respBody))
		return "", errors.New(errors.ErrCodeImageGenAPI, fmt.Sprintf("image generation API returned %d", resp.StatusCode))
	}

	return s.parseResponse(respBody)
}

func (s *Service) buildImagePrompt(prompt, style string) string {
	return fmt.Sprintf("Create a visually stunning, high-quality image for a presentation slide. Style: %s, professional. Prompt: %s. IMPORTANT: The image must not contain any words, text, or letters.", style, prompt)
}

// isRateLimited classifies throttling: HTTP 429 or a RESOURCE_EXHAUSTED status
// in the error envelope, which some gateways send with other codes.
func isRateLimited(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status == http.StatusOK {
		return false
	}
	var envelope struct {
		Error struct {
			Status string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return envelope.Error.Status == "RESOURCE_EXHAUSTED"
}

func (s *Service) parseResponse(body []byte) (string, error) {
	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text       string `json:"text,omitempty"`
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData,omitempty"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to parse image gen response")
	}

	if len(response.Candidates) == 0 {
		return "", nil
	}

	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			mimeType := part.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/jpeg"
			}
			return fmt.Sprintf("data:%s;base64,%s", mimeType, part.InlineData.Data), nil
		}
	}

	return "", nil
}
