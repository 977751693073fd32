package api

import (
	"github.com/ChaseRain/deckstream/internal/domain"
)

type GeneratePresentationRequest struct {
	// ID regenerates an existing presentation.
	ID          string `json:"id"`
	Topic       string `json:"topic" binding:"required"`
	SlideCount  int    `json:"slide_count"`
	Audience    string `json:"audience"`
	Language    string `json:"language"`
	UseSearch   bool   `json:"use_search"`
	HighQuality bool   `json:"high_quality"`
	Theme       string `json:"theme"`
	Stream      bool   `json:"stream"`
	WaitImages  bool   `json:"wait_images"`
	// NoWait rejects the request when every generation slot is busy.
	NoWait bool `json:"no_wait"`
	// ClientRequestID is echoed back on every stream event.
	ClientRequestID string `json:"client_request_id"`
}

type PresentationResponse struct {
	RequestID    string               `json:"request_id,omitempty"`
	Status       string               `json:"status"`
	Presentation *domain.Presentation `json:"presentation,omitempty"`
	CanUndo      *bool                `json:"can_undo,omitempty"`
	CanRedo      *bool                `json:"can_redo,omitempty"`
	Error        *ErrorBody           `json:"error,omitempty"`
}

type HistoryResponse struct {
	Items []domain.HistoryItem `json:"items"`
}

type SavePromptRequest struct {
	Prompt          string `json:"prompt" binding:"required"`
	FeedbackSummary string `json:"feedback_summary"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status string     `json:"status"`
	Error  *ErrorBody `json:"error"`
}

type HealthResponse struct {
	Status              string `json:"status"`
	GenerationsInFlight int    `json:"generations_in_flight"`
}

// StreamEvent is the envelope of every SSE data line.
type StreamEvent struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
}

type EventStart struct {
	Message        string               `json:"message"`
	PresentationID string               `json:"presentation_id"`
	Placeholder    *domain.Presentation `json:"placeholder,omitempty"`
	Timestamp      int64                `json:"timestamp"`
}

type EventTitle struct {
	Title string `json:"title"`
}

type EventSlide struct {
	Index    int          `json:"index"`
	Slide    domain.Slide `json:"slide"`
	Progress int          `json:"progress"`
}

type EventImage struct {
	Index    int    `json:"index"`
	ImageURL string `json:"image_url"`
}

type EventComplete struct {
	Message      string               `json:"message"`
	Presentation *domain.Presentation `json:"presentation"`
}

type EventHistory struct {
	Items []domain.HistoryItem `json:"items"`
}

type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	StatusPending   = "PENDING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"

	EventTypeStart    = "start"
	EventTypeTitle    = "title"
	EventTypeSlide    = "slide"
	EventTypeImage    = "image"
	EventTypeComplete = "complete"
	EventTypeHistory  = "history"
	EventTypeError    = "error"
)
