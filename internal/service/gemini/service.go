package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/httpclient"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/protocol"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Request describes one presentation to stream.
type Request struct {
	Topic       string
	SlideCount  int
	Audience    string
	Language    domain.Language
	UseSearch   bool
	HighQuality bool
	// Prompt overrides DefaultPrompt. It uses the same placeholders.
	Prompt string
}

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

// Ready reports whether the service can reach the model at all.
func (s *Service) Ready() error {
	if s.apiKey == "" {
		return errors.New(errors.ErrCodeNotInitialized, "gemini API key is not configured")
	}
	return nil
}

// StreamPresentation starts a streaming generation and returns the text
// fragments as they arrive. The channel is closed when the model finishes;
// a read or decode failure is delivered as a final chunk with Err set.
func (s *Service) StreamPresentation(ctx context.Context, req Request) (<-chan protocol.Chunk, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{
						"text": BuildPrompt(req),
					},
				},
			},
		},
	}
	if req.UseSearch {
		requestBody["tools"] = []map[string]interface{}{
			{"googleSearch": map[string]interface{}{}},
		}
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", s.baseURL, s.model, s.apiKey)

	resp, err := s.httpClient.PostJSONStream(ctx, url, bodyBytes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGeminiAPI, "gemini API request failed")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		s.logger.Error("gemini API error", "status", resp.StatusCode, "body", string(body))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errors.New(errors.ErrCodeRateLimited, "gemini quota exhausted")
		}
		return nil, errors.New(errors.ErrCodeGeminiAPI, fmt.Sprintf("gemini API returned %d", resp.StatusCode))
	}

	ch := make(chan protocol.Chunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		send := func(c protocol.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			chunk, err := parseStreamChunk([]byte(data))
			if err != nil {
				send(protocol.Chunk{Err: errors.Wrap(err, errors.ErrCodeGeminiAPI, "failed to decode stream chunk")})
				return
			}
			if chunk.Text == "" && len(chunk.Sources) == 0 {
				continue
			}
			if !send(chunk) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(protocol.Chunk{Err: errors.Wrap(err, errors.ErrCodeGeminiAPI, "stream read failed")})
		}
	}()

	return ch, nil
}

type streamResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *domain.Source `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

func parseStreamChunk(data []byte) (protocol.Chunk, error) {
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return protocol.Chunk{}, err
	}
	var chunk protocol.Chunk
	if len(resp.Candidates) == 0 {
		return chunk, nil
	}
	candidate := resp.Candidates[0]

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	chunk.Text = text.String()

	if candidate.GroundingMetadata != nil {
		for _, gc := range candidate.GroundingMetadata.GroundingChunks {
			if gc.Web != nil {
				chunk.Sources = append(chunk.Sources, *gc.Web)
			}
		}
	}
	return chunk, nil
}
