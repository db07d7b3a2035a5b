package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tyemirov/guiderelay/internal/model"
)

const (
	defaultPredictionTimeout = 60 * time.Second
	maxRawPreviewLength      = 500
)

// PredictionForwarder relays a question to the prediction backend.
type PredictionForwarder interface {
	Forward(ctx context.Context, request model.PredictionRequest) (model.PredictionResponse, error)
}

// FlowiseConfig describes the prediction endpoint.
type FlowiseConfig struct {
	EndpointURL string
	// APIKey is sent as a bearer token when set.
	APIKey  string
	Timeout time.Duration
}

// answerExtractor returns the answer candidate held by a backend reply, if any.
type answerExtractor func(body []byte) (any, bool)

// answerExtractors are tried in order; the first truthy candidate wins.
var answerExtractors = []answerExtractor{
	fieldExtractor("text"),
	fieldExtractor("answer"),
	wholeBodyExtractor,
}

type flowiseForwarder struct {
	config       FlowiseConfig
	httpClient   *http.Client
	logger       *slog.Logger
	newSessionID func() string
}

// NewPredictionForwarder builds a forwarder with its own HTTP client bounded by cfg.Timeout.
func NewPredictionForwarder(cfg FlowiseConfig, logger *slog.Logger) PredictionForwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPredictionTimeout
	}
	return &flowiseForwarder{
		config:       cfg,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		newSessionID: uuid.NewString,
	}
}

// ValidateQuestion rejects an empty question.
func ValidateQuestion(question string) error {
	if question == "" {
		return ErrQuestionRequired
	}
	return nil
}

func (forwarder *flowiseForwarder) Forward(ctx context.Context, request model.PredictionRequest) (model.PredictionResponse, error) {
	if err := ValidateQuestion(request.Question); err != nil {
		return model.PredictionResponse{}, err
	}
	request.SessionID = forwarder.newSessionID()

	payload, err := json.Marshal(request)
	if err != nil {
		return model.PredictionResponse{}, fmt.Errorf("encode prediction payload: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, forwarder.config.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return model.PredictionResponse{}, fmt.Errorf("build prediction request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if forwarder.config.APIKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+forwarder.config.APIKey)
	}

	started := time.Now()
	httpResponse, err := forwarder.httpClient.Do(httpRequest)
	if err != nil {
		forwarder.logger.Error("Failed to call Flowise prediction endpoint", "session_id", request.SessionID, "error", err)
		return model.PredictionResponse{}, &UpstreamError{Err: err}
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		forwarder.logger.Error("Failed to read Flowise response", "session_id", request.SessionID, "error", err)
		return model.PredictionResponse{}, &UpstreamError{Err: err}
	}

	forwarder.logger.Info(
		"prediction_completed",
		"session_id", request.SessionID,
		"status", httpResponse.StatusCode,
		"uploads", len(request.Uploads),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if !json.Valid(body) {
		preview := truncateText(string(body), maxRawPreviewLength)
		forwarder.logger.Error("Non-JSON response from Flowise", "session_id", request.SessionID, "status", httpResponse.StatusCode, "raw", preview)
		return model.PredictionResponse{}, &ProtocolError{StatusCode: httpResponse.StatusCode, Raw: preview}
	}

	return model.PredictionResponse{
		Success:    true,
		Answer:     NormalizeAnswer(body),
		Raw:        json.RawMessage(body),
		StatusCode: httpResponse.StatusCode,
		SessionID:  request.SessionID,
	}, nil
}

// NormalizeAnswer picks the answer out of a valid JSON reply.
func NormalizeAnswer(body []byte) any {
	for _, extract := range answerExtractors {
		if candidate, found := extract(body); found {
			return candidate
		}
	}
	return nil
}

func fieldExtractor(field string) answerExtractor {
	return func(body []byte) (any, bool) {
		parsed := gjson.ParseBytes(body)
		if !parsed.IsObject() {
			return nil, false
		}
		result := parsed.Get(field)
		if !truthy(result) {
			return nil, false
		}
		return result.Value(), true
	}
}

func wholeBodyExtractor(body []byte) (any, bool) {
	return gjson.ParseBytes(body).Value(), true
}

func truthy(result gjson.Result) bool {
	switch result.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return result.Num != 0
	case gjson.String:
		return result.Str != ""
	case gjson.JSON:
		if result.IsArray() {
			return len(result.Array()) > 0
		}
		return len(result.Map()) > 0
	default:
		return true
	}
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
