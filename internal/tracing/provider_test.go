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

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer

	tp, shutdown, err := NewProvider(ProviderConfig{
		ServiceName:    "jobcontrollerd",
		ServiceVersion: "test",
		Writer:         &buf,
		SampleRatio:    1.0,
	})
	require.NoError(t, err)
	defer shutdown(context.Background())

	tracer := tp.Tracer("test")
	ctx := ToContext(context.Background(), CorrelationID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"))

	_, span := SpanFromCorrelation(ctx, tracer, "Start")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "correlation_id")
}

func TestNewProvider_DefaultsSampleRatio(t *testing.T) {
	tp, shutdown, err := NewProvider(ProviderConfig{ServiceName: "jobcontrollerd"})
	require.NoError(t, err)
	defer shutdown(context.Background())
	require.NotNil(t, tp)
}
