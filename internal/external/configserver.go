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

// ConfigServerClient is a ConfigServer backed by a SigV4-signed HTTP
// client.
type ConfigServerClient struct {
	client *sigV4Client
}

// ConfigServerConfig configures a ConfigServerClient.
type ConfigServerConfig struct {
	BaseURL string
	Region  string
	Timeout time.Duration
}

// NewConfigServerClient creates a ConfigServerClient.
func NewConfigServerClient(ctx context.Context, cfg ConfigServerConfig) (*ConfigServerClient, error) {
	client, err := newSigV4Client(ctx, sigV4Config{
		BaseURL: cfg.BaseURL,
		Service: "execute-api",
		Region:  cfg.Region,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &ConfigServerClient{client: client}, nil
}

type getLogsResponse struct {
	Entries []struct {
		ID        int64     `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		Message   string    `json:"message"`
	} `json:"entries"`
}

// GetLogs implements ConfigServer.
func (c *ConfigServerClient) GetLogs(ctx context.Context, deployment runmodel.RunID, from time.Time) ([]logstore.Entry, error) {
	path := fmt.Sprintf("/deployments/%s/logs?from=%s", deployment.String(), from.Format(time.RFC3339))
	body, err := c.client.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp getLogsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "decode config server logs response")
	}

	entries := make([]logstore.Entry, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = logstore.Entry{ID: e.ID, Timestamp: e.Timestamp, Message: e.Message}
	}
	return entries, nil
}

// Deactivate implements ConfigServer.
func (c *ConfigServerClient) Deactivate(ctx context.Context, deployment runmodel.RunID) error {
	path := fmt.Sprintf("/deployments/%s/deactivate", deployment.String())
	_, err := c.client.do(ctx, "POST", path, nil)
	return err
}
