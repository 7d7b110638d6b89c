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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/time/rate"

	jcerrors "github.com/nimbusline/jobctl/pkg/errors"
)

// defaultRequestRate bounds how often a sigV4Client issues requests
// against its backing service, so a daemon polling many active runs
// can't hammer the config server or tester cloud faster than they
// tolerate.
const defaultRequestRate = 20

// sigV4Client is the shared SigV4-signed HTTP transport for
// ConfigServerClient and TesterCloudClient: both talk to a private AWS
// service endpoint and differ only in the paths and payloads they send.
type sigV4Client struct {
	baseURL string
	service string
	region  string

	httpClient *http.Client
	awsConfig  aws.Config
	signer     *v4.Signer
	limiter    *rate.Limiter

	credMutex  sync.RWMutex
	creds      aws.Credentials
	credExpiry time.Time
}

// sigV4Config configures a sigV4Client.
type sigV4Config struct {
	BaseURL string
	Service string
	Region  string
	Timeout time.Duration
}

func newSigV4Client(ctx context.Context, cfg sigV4Config) (*sigV4Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "load AWS configuration")
	}

	return &sigV4Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		service: cfg.Service,
		region:  cfg.Region,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		awsConfig: awsCfg,
		signer:    v4.NewSigner(),
		limiter:   rate.NewLimiter(rate.Limit(defaultRequestRate), defaultRequestRate),
	}, nil
}

func (c *sigV4Client) refreshCredentials(ctx context.Context) (aws.Credentials, error) {
	c.credMutex.Lock()
	defer c.credMutex.Unlock()

	if !c.credExpiry.IsZero() && time.Now().Before(c.credExpiry) {
		return c.creds, nil
	}

	creds, err := c.awsConfig.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, jcerrors.WrapKind(jcerrors.External, err, "resolve AWS credentials")
	}

	c.creds = creds
	expiry := creds.Expires
	if expiry.IsZero() || time.Until(expiry) > time.Hour {
		expiry = time.Now().Add(time.Hour)
	}
	c.credExpiry = expiry
	return creds, nil
}

// do sends a signed request to path with body (nil for none) and returns
// the response body on 2xx, or an External/Timeout error otherwise.
func (c *sigV4Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, jcerrors.WrapKind(jcerrors.Timeout, err, fmt.Sprintf("rate limit wait for %s %s", method, path))
	}

	creds, err := c.refreshCredentials(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.Invalid, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	hash := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(hash[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	if err := c.signer.SignHTTP(ctx, creds, req, payloadHash, c.service, c.region, time.Now()); err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "sign request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, jcerrors.WrapKind(jcerrors.Timeout, err, fmt.Sprintf("%s %s", method, path))
		}
		return nil, jcerrors.WrapKind(jcerrors.External, err, fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, jcerrors.WrapKind(jcerrors.External, err, "read response body")
	}

	if resp.StatusCode >= 400 {
		return nil, jcerrors.NewKind(jcerrors.External,
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}
