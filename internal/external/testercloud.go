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

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nimbusline/jobctl/internal/logstore"
	"github.com/nimbusline/jobctl/internal/runmodel"
	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
)

// TesterCloudClient is a TesterCloud backed by a SigV4-signed HTTP client.
type TesterCloudClient struct {
	client *sigV4Client
}

// TesterCloudConfig configures a TesterCloudClient.
type TesterCloudConfig struct {
	BaseURL string
	Region  string
	Timeout time.Duration
}

// NewTesterCloudClient creates a TesterCloudClient.
func NewTesterCloudClient(ctx context.Context, cfg TesterCloudConfig) (*TesterCloudClient, error) {
	client, err := newSigV4Client(ctx, sigV4Config{
		BaseURL: cfg.BaseURL,
		Service: "execute-api",
		Region:  cfg.Region,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &TesterCloudClient{client: client}, nil
}

type getLogResponse struct {
	Entries []struct {
		ID        int64     `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		Message   string    `json:"message"`
	} `json:"entries"`
}

// GetLog implements TesterCloud.
func (c *TesterCloudClient) GetLog(ctx context.Context, deployment runmodel.RunID, afterEntryID int64) ([]logstore.Entry, error) {
	path := fmt.Sprintf("/deployments/%s/test-log?after=%d", deployment.String(), afterEntryID)
	body, err := c.client.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp getLogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "decode tester cloud log response")
	}

	entries := make([]logstore.Entry, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = logstore.Entry{ID: e.ID, Timestamp: e.Timestamp, Message: e.Message}
	}
	return entries, nil
}

type getTestReportResponse struct {
	Found     bool      `json:"found"`
	FetchedAt time.Time `json:"fetched_at"`
	Content   []byte    `json:"content"`
}

// GetTestReport implements TesterCloud. It returns (nil, nil) if the
// tester cloud has not produced a report yet.
func (c *TesterCloudClient) GetTestReport(ctx context.Context, deployment runmodel.RunID) (*TestReport, error) {
	path := fmt.Sprintf("/deployments/%s/test-report", deployment.String())
	body, err := c.client.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp getTestReportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "decode tester cloud test report response")
	}
	if !resp.Found {
		return nil, nil
	}
	return &TestReport{FetchedAt: resp.FetchedAt, Content: resp.Content}, nil
}
