// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"log/slog"
	"time"
)

// OperationRequest describes an inbound controller operation for logging purposes
// (e.g. Start, Finish, Deploy, CollectGarbage).
type OperationRequest struct {
	// Name is the operation name (e.g. "Start", "Finish", "Deploy").
	Name string

	// CorrelationID is the correlation ID for tracing the request.
	CorrelationID string

	// ApplicationID is the application the operation targets.
	ApplicationID string

	// JobType is the job type the operation targets.
	JobType string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// OperationResponse describes the outcome of a controller operation for logging purposes.
type OperationResponse struct {
	// Success indicates whether the operation completed without error.
	Success bool

	// Error is the error message if the operation failed.
	Error string

	// DurationMs is the duration of the operation in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogOperationRequest logs the start of a controller operation.
func LogOperationRequest(logger *slog.Logger, req *OperationRequest) {
	attrs := []any{
		"event", "operation_request",
		"operation", req.Name,
	}

	if req.ApplicationID != "" {
		attrs = append(attrs, ApplicationIDKey, req.ApplicationID)
	}

	if req.JobType != "" {
		attrs = append(attrs, JobTypeKey, req.JobType)
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("operation started", attrs...)
}

// LogOperationResponse logs the completion of a controller operation.
func LogOperationResponse(logger *slog.Logger, req *OperationRequest, resp *OperationResponse) {
	attrs := []any{
		"event", "operation_response",
		"operation", req.Name,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
	}

	if req.ApplicationID != "" {
		attrs = append(attrs, ApplicationIDKey, req.ApplicationID)
	}

	if req.JobType != "" {
		attrs = append(attrs, JobTypeKey, req.JobType)
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "operation completed"

	if !resp.Success {
		level = slog.LevelError
		message = "operation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// OperationMiddleware wraps controller operations with request/response logging.
type OperationMiddleware struct {
	logger *slog.Logger
}

// NewOperationMiddleware creates a new operation logging middleware.
func NewOperationMiddleware(logger *slog.Logger) *OperationMiddleware {
	return &OperationMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that performs a controller operation.
// It logs the request and response automatically.
func (m *OperationMiddleware) Handler(req *OperationRequest, handler func() error) error {
	start := time.Now()

	LogOperationRequest(m.logger, req)

	err := handler()

	duration := time.Since(start).Milliseconds()

	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return err
}

// HandlerWithMetadata wraps a function that performs a controller operation and
// returns metadata. It logs the request and response with the returned metadata.
func (m *OperationMiddleware) HandlerWithMetadata(req *OperationRequest, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogOperationRequest(m.logger, req)

	metadata, err := handler()

	duration := time.Since(start).Milliseconds()

	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return metadata, err
}
