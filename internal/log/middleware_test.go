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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogOperationRequest(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	req := &OperationRequest{
		Name:          "Start",
		CorrelationID: "correlation-123",
		ApplicationID: "hosted-app",
		JobType:       "component",
		Metadata: map[string]interface{}{
			"step": "deploy",
		},
	}

	LogOperationRequest(logger, req)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "operation_request" {
		t.Errorf("expected event to be 'operation_request', got: %v", logEntry["event"])
	}

	if logEntry["operation"] != "Start" {
		t.Errorf("expected operation to be 'Start', got: %v", logEntry["operation"])
	}

	if logEntry["correlation_id"] != "correlation-123" {
		t.Errorf("expected correlation_id to be 'correlation-123', got: %v", logEntry["correlation_id"])
	}

	if logEntry[ApplicationIDKey] != "hosted-app" {
		t.Errorf("expected %s to be 'hosted-app', got: %v", ApplicationIDKey, logEntry[ApplicationIDKey])
	}

	if logEntry[JobTypeKey] != "component" {
		t.Errorf("expected %s to be 'component', got: %v", JobTypeKey, logEntry[JobTypeKey])
	}

	if logEntry["step"] != "deploy" {
		t.Errorf("expected step to be 'deploy', got: %v", logEntry["step"])
	}
}

func TestLogOperationRequest_MinimalFields(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	req := &OperationRequest{
		Name: "CollectGarbage",
	}

	LogOperationRequest(logger, req)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if _, ok := logEntry["correlation_id"]; ok {
		t.Errorf("expected no correlation_id field for minimal request")
	}

	if _, ok := logEntry[ApplicationIDKey]; ok {
		t.Errorf("expected no %s field for minimal request", ApplicationIDKey)
	}
}

func TestLogOperationResponse_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	req := &OperationRequest{
		Name:          "Finish",
		CorrelationID: "correlation-123",
		ApplicationID: "hosted-app",
		JobType:       "component",
	}

	resp := &OperationResponse{
		Success:    true,
		DurationMs: 150,
		Metadata: map[string]interface{}{
			"status": "success",
		},
	}

	LogOperationResponse(logger, req, resp)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "operation_response" {
		t.Errorf("expected event to be 'operation_response', got: %v", logEntry["event"])
	}

	if logEntry["success"] != true {
		t.Errorf("expected success to be true, got: %v", logEntry["success"])
	}

	if logEntry["duration_ms"] != float64(150) {
		t.Errorf("expected duration_ms to be 150, got: %v", logEntry["duration_ms"])
	}

	if logEntry["level"] != "INFO" {
		t.Errorf("expected level to be 'INFO', got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "operation completed" {
		t.Errorf("expected msg to be 'operation completed', got: %v", logEntry["msg"])
	}

	if logEntry["status"] != "success" {
		t.Errorf("expected status to be 'success', got: %v", logEntry["status"])
	}

	if _, ok := logEntry["error"]; ok {
		t.Errorf("expected no error field for successful response")
	}
}

func TestLogOperationResponse_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	req := &OperationRequest{
		Name:          "Deploy",
		CorrelationID: "correlation-123",
		ApplicationID: "hosted-app",
	}

	resp := &OperationResponse{
		Success:    false,
		Error:      "lock acquisition failed",
		DurationMs: 50,
	}

	LogOperationResponse(logger, req, resp)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["success"] != false {
		t.Errorf("expected success to be false, got: %v", logEntry["success"])
	}

	if logEntry["error"] != "lock acquisition failed" {
		t.Errorf("expected error to be 'lock acquisition failed', got: %v", logEntry["error"])
	}

	if logEntry["level"] != "ERROR" {
		t.Errorf("expected level to be 'ERROR', got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "operation failed" {
		t.Errorf("expected msg to be 'operation failed', got: %v", logEntry["msg"])
	}
}

func TestOperationMiddleware_Handler_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperationMiddleware(logger)

	req := &OperationRequest{
		Name:          "Start",
		CorrelationID: "correlation-123",
	}

	handlerCalled := false
	err := middleware.Handler(req, func() error {
		handlerCalled = true
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if !handlerCalled {
		t.Errorf("expected handler to be called")
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d: %s", len(lines), output)
	}

	var requestLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &requestLog); err != nil {
		t.Fatalf("expected valid JSON for request log: %v", err)
	}

	if requestLog["event"] != "operation_request" {
		t.Errorf("expected first log to be operation_request, got: %v", requestLog["event"])
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}

	if responseLog["event"] != "operation_response" {
		t.Errorf("expected second log to be operation_response, got: %v", responseLog["event"])
	}

	if responseLog["success"] != true {
		t.Errorf("expected success to be true, got: %v", responseLog["success"])
	}

	if _, ok := responseLog["duration_ms"]; !ok {
		t.Errorf("expected duration_ms to be present")
	}
}

func TestOperationMiddleware_Handler_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperationMiddleware(logger)

	req := &OperationRequest{
		Name: "Abort",
	}

	testErr := errors.New("handler error")
	err := middleware.Handler(req, func() error {
		return testErr
	})

	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}

	if responseLog["success"] != false {
		t.Errorf("expected success to be false, got: %v", responseLog["success"])
	}

	if responseLog["error"] != "handler error" {
		t.Errorf("expected error to be 'handler error', got: %v", responseLog["error"])
	}

	if responseLog["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", responseLog["level"])
	}
}

func TestOperationMiddleware_HandlerWithMetadata_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperationMiddleware(logger)

	req := &OperationRequest{
		Name: "Deploy",
	}

	expectedMetadata := map[string]interface{}{
		"run_number": 0,
		"status":     "success",
	}

	metadata, err := middleware.HandlerWithMetadata(req, func() (map[string]interface{}, error) {
		return expectedMetadata, nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if metadata["run_number"] != 0 {
		t.Errorf("expected run_number to be 0, got: %v", metadata["run_number"])
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}

	if responseLog["run_number"] != float64(0) {
		t.Errorf("expected run_number in log to be 0, got: %v", responseLog["run_number"])
	}

	if responseLog["status"] != "success" {
		t.Errorf("expected status in log to be 'success', got: %v", responseLog["status"])
	}
}

func TestOperationMiddleware_HandlerWithMetadata_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperationMiddleware(logger)

	req := &OperationRequest{
		Name: "Deploy",
	}

	partialMetadata := map[string]interface{}{
		"run_number": 1,
	}

	testErr := errors.New("deployment failed")

	metadata, err := middleware.HandlerWithMetadata(req, func() (map[string]interface{}, error) {
		return partialMetadata, testErr
	})

	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}

	if metadata["run_number"] != 1 {
		t.Errorf("expected run_number to be 1, got: %v", metadata["run_number"])
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var responseLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &responseLog); err != nil {
		t.Fatalf("expected valid JSON for response log: %v", err)
	}

	if responseLog["success"] != false {
		t.Errorf("expected success to be false, got: %v", responseLog["success"])
	}

	if responseLog["error"] != "deployment failed" {
		t.Errorf("expected error to be 'deployment failed', got: %v", responseLog["error"])
	}

	if responseLog["run_number"] != float64(1) {
		t.Errorf("expected run_number in log to be 1, got: %v", responseLog["run_number"])
	}
}

func TestNewOperationMiddleware(t *testing.T) {
	logger := New(nil)
	middleware := NewOperationMiddleware(logger)

	if middleware == nil {
		t.Errorf("expected non-nil middleware")
	}

	if middleware.logger != logger {
		t.Errorf("expected middleware to use provided logger")
	}
}
