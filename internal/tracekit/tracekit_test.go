// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceIDFromStreamIDIsDeterministicPerSid(t *testing.T) {
	a := TraceIDFromStreamID(42)
	b := TraceIDFromStreamID(42)
	assert.Equal(t, a, b)
	assert.NotEqual(t, trace.TraceID{}, a)
}

func TestTraceIDFromStreamIDDiffersAcrossSids(t *testing.T) {
	a := TraceIDFromStreamID(1)
	b := TraceIDFromStreamID(2)
	assert.NotEqual(t, a, b)
}

func TestTraceIDFromStreamIDZeroIsRandom(t *testing.T) {
	a := TraceIDFromStreamID(0)
	b := TraceIDFromStreamID(0)
	assert.NotEqual(t, a, b)
}

func TestNewTraceContextAssignsDistinctSpanIDs(t *testing.T) {
	a := NewTraceContext(7)
	b := NewTraceContext(7)
	assert.Equal(t, a.TraceID, b.TraceID)
	assert.NotEqual(t, a.SpanID, b.SpanID)
}
