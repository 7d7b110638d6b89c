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
	"testing"
	"time"
)

func TestNewSigV4Client_TrimsTrailingSlash(t *testing.T) {
	c, err := newSigV4Client(context.Background(), sigV4Config{
		BaseURL: "https://example.com/api/",
		Service: "execute-api",
		Region:  "us-west-2",
	})
	if err != nil {
		t.Fatalf("newSigV4Client() error = %v", err)
	}
	if c.baseURL != "https://example.com/api" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestNewSigV4Client_DefaultsTimeout(t *testing.T) {
	c, err := newSigV4Client(context.Background(), sigV4Config{
		BaseURL: "https://example.com",
		Service: "execute-api",
		Region:  "us-west-2",
	})
	if err != nil {
		t.Fatalf("newSigV4Client() error = %v", err)
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", c.httpClient.Timeout)
	}
}

func TestNewSigV4Client_InstallsARequestLimiter(t *testing.T) {
	c, err := newSigV4Client(context.Background(), sigV4Config{
		BaseURL: "https://example.com",
		Service: "execute-api",
		Region:  "us-west-2",
	})
	if err != nil {
		t.Fatalf("newSigV4Client() error = %v", err)
	}
	if c.limiter == nil {
		t.Fatal("expected a request limiter to be installed")
	}
	if !c.limiter.Allow() {
		t.Error("expected the limiter to have burst capacity available on a fresh client")
	}
}

func TestSigV4Client_DoRespectsLimiterCancellation(t *testing.T) {
	c, err := newSigV4Client(context.Background(), sigV4Config{
		BaseURL: "https://example.com",
		Service: "execute-api",
		Region:  "us-west-2",
	})
	if err != nil {
		t.Fatalf("newSigV4Client() error = %v", err)
	}

	// Drain the burst, then cancel the context before do() can wait for
	// the limiter to refill; do() must return the limiter's ctx error
	// rather than attempting a request.
	for c.limiter.Allow() {
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.do(ctx, "GET", "/path", nil); err == nil {
		t.Fatal("expected do() to fail once the limiter has no budget and the context is already canceled")
	}
}

// Exercising do() against a live endpoint requires resolvable AWS
// credentials and a running ConfigServer/TesterCloud double, so it is not
// covered here; see ConfigServerClient and TesterCloudClient for the
// request construction this client performs once signed.
