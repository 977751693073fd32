package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ChaseRain/deckstream/internal/domain"
	"github.com/ChaseRain/deckstream/internal/infra/logger"
	"github.com/ChaseRain/deckstream/internal/service/orchestrator"
	"github.com/ChaseRain/deckstream/pkg/errors"
)

type Handler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		logger:       logger.OrNop(log),
	}
}

func (h *Handler) GeneratePresentation(c *gin.Context) {
	var req GeneratePresentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request", "error", err)
		h.handleError(c, errors.Wrap(err, errors.ErrCodeInvalidReq, "invalid request body"))
		return
	}

	requestID := req.ClientRequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	if req.Language == "" {
		req.Language = string(domain.LanguageEnglish)
	}

	orchReq := orchestrator.GenerateRequest{
		ID:          req.ID,
		Topic:       req.Topic,
		SlideCount:  req.SlideCount,
		Audience:    req.Audience,
		Language:    domain.Language(req.Language),
		UseSearch:   req.UseSearch,
		HighQuality: req.HighQuality,
		Theme:       req.Theme,
		WaitImages:  req.WaitImages,
		NoWait:      req.NoWait,
	}

	if req.Stream {
		// keep the stream open until every image has landed
		orchReq.WaitImages = true
		h.handleStreamingResponse(c, requestID, orchReq)
		return
	}

	result, err := h.orchestrator.Generate(c.Request.Context(), orchReq, nil)
	if err != nil && result == nil {
		h.handleError(c, err)
		return
	}
	resp := PresentationResponse{
		RequestID:    requestID,
		Status:       StatusSucceeded,
		Presentation: result,
	}
	if err != nil {
		// the stream broke but the slides decoded so far were kept
		h.logger.Warn("generation ended early", "request_id", requestID, "error", err)
		resp.Status = StatusFailed
		resp.Error = errorBody(err)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleStreamingResponse(c *gin.Context, requestID string, req orchestrator.GenerateRequest) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	sendEvent := func(eventType string, data interface{}) {
		event := StreamEvent{
			Event:     eventType,
			Data:      data,
			RequestID: requestID,
		}
		jsonData, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to encode stream event", "event", eventType, "error", err)
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\n", eventType)
		fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData)
		c.Writer.Flush()
	}

	onProgress := func(event orchestrator.ProgressEvent) {
		switch event.Stage {
		case orchestrator.StageStart:
			placeholder, _ := event.Data.(*domain.Presentation)
			start := EventStart{
				Message:     event.Message,
				Placeholder: placeholder,
				Timestamp:   time.Now().Unix(),
			}
			if placeholder != nil {
				start.PresentationID = placeholder.ID
			}
			sendEvent(EventTypeStart, start)
		case orchestrator.StageTitle:
			title, _ := event.Data.(string)
			sendEvent(EventTypeTitle, EventTitle{Title: title})
		case orchestrator.StageSlide:
			if data, ok := event.Data.(orchestrator.SlideData); ok {
				sendEvent(EventTypeSlide, EventSlide{
					Index:    data.Index,
					Slide:    data.Slide,
					Progress: event.Progress,
				})
			}
		case orchestrator.StageImage:
			if data, ok := event.Data.(orchestrator.SlideData); ok {
				sendEvent(EventTypeImage, EventImage{
					Index:    data.Index,
					ImageURL: data.Slide.ImageURL,
				})
			}
		case orchestrator.StageComplete:
			p, _ := event.Data.(*domain.Presentation)
			sendEvent(EventTypeComplete, EventComplete{
				Message:      event.Message,
				Presentation: p,
			})
		case orchestrator.StageHistory:
			items, _ := event.Data.([]domain.HistoryItem)
			sendEvent(EventTypeHistory, EventHistory{Items: items})
		}
	}

	if _, err := h.orchestrator.Generate(c.Request.Context(), req, onProgress); err != nil {
		h.logger.Error("generation failed", "request_id", requestID, "error", err)
		sendEvent(EventTypeError, EventError{
			Code:    errors.CodeOf(err),
			Message: err.Error(),
		})
	}
}

func (h *Handler) ListHistory(c *gin.Context) {
	items, err := h.orchestrator.History(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	if items == nil {
		items = []domain.HistoryItem{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Items: items})
}

func (h *Handler) LoadPresentation(c *gin.Context) {
	p, err := h.orchestrator.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respondEdit(c, p)
}

func (h *Handler) CommitPresentation(c *gin.Context) {
	var p domain.Presentation
	if err := c.ShouldBindJSON(&p); err != nil {
		h.handleError(c, errors.Wrap(err, errors.ErrCodeInvalidReq, "invalid presentation body"))
		return
	}
	id := c.Param("id")
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		h.handleError(c, errors.New(errors.ErrCodeInvalidReq, "presentation id does not match path"))
		return
	}

	committed, err := h.orchestrator.Commit(c.Request.Context(), &p)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respondEdit(c, committed)
}

func (h *Handler) Undo(c *gin.Context) {
	p, err := h.orchestrator.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respondEdit(c, p)
}

func (h *Handler) Redo(c *gin.Context) {
	p, err := h.orchestrator.Redo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respondEdit(c, p)
}

func (h *Handler) respondEdit(c *gin.Context, p *domain.Presentation) {
	resp := PresentationResponse{Status: StatusSucceeded, Presentation: p}
	if canUndo, canRedo, err := h.orchestrator.UndoState(c.Request.Context(), p.ID); err == nil {
		resp.CanUndo = &canUndo
		resp.CanRedo = &canRedo
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GenerateImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.handleError(c, errors.Wrap(err, errors.ErrCodeInvalidReq, "slide index must be a number"))
		return
	}
	if err := h.orchestrator.GenerateImage(c.Request.Context(), c.Param("id"), index); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": StatusPending})
}

func (h *Handler) ListPrompts(c *gin.Context) {
	state, err := h.orchestrator.Prompts(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) SavePrompt(c *gin.Context) {
	var req SavePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.Wrap(err, errors.ErrCodeInvalidReq, "invalid prompt body"))
		return
	}
	v, err := h.orchestrator.SavePrompt(c.Request.Context(), req.Prompt, req.FeedbackSummary)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) ActivatePrompt(c *gin.Context) {
	if err := h.orchestrator.ActivatePrompt(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	h.ListPrompts(c)
}

func (h *Handler) ResetPrompts(c *gin.Context) {
	state, err := h.orchestrator.ResetPrompt(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) DiffPrompts(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		h.handleError(c, errors.New(errors.ErrCodeInvalidReq, "from and to are required"))
		return
	}
	diff, err := h.orchestrator.DiffPrompts(c.Request.Context(), from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, diff)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := statusFor(errors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	} else {
		h.logger.Warn("request rejected", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, ErrorResponse{
		Status: StatusFailed,
		Error:  errorBody(err),
	})
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{Code: errors.CodeOf(err), Message: err.Error()}
}

func statusFor(code string) int {
	switch code {
	case errors.ErrCodeInvalidReq, errors.ErrCodeNothingToUndo, errors.ErrCodeNothingToRedo:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeGenerationActive:
		return http.StatusConflict
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeNotInitialized:
		return http.StatusServiceUnavailable
	case errors.ErrCodeGeminiAPI, errors.ErrCodeImageGenAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:              "ok",
		GenerationsInFlight: h.orchestrator.InFlight(),
	})
}
