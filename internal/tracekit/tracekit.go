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
	"crypto/rand"
	"encoding/binary"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext 把一对 TraceID/SpanID 捆在一起 供结构化日志字段使用
type TraceContext struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID
}

// TraceIDFromStreamID 把 wire 协议里的 stream sid 映射为一个确定性
// TraceID：sid 非零时 同一个 sid 在 receive/main/send 三个任务里产生
// 的所有日志都能通过相同的 TraceID 关联起来，即便协议本身只携带 sid。
// sid 为 0 (带外控制消息，不属于任何流) 时退化为随机 TraceID。
func TraceIDFromStreamID(sid uint16) trace.TraceID {
	if sid == 0 {
		return RandomTraceID()
	}
	var b [16]byte
	binary.BigEndian.PutUint16(b[14:], sid)
	return trace.TraceID(b)
}

// NewTraceContext 为一次 ExecCell 执行生成一个 TraceContext：TraceID
// 取决于 sid SpanID 总是随机的，区分同一条流里先后发生的多次执行。
func NewTraceContext(sid uint16) TraceContext {
	return TraceContext{
		TraceID: TraceIDFromStreamID(sid),
		SpanID:  RandomSpanID(),
	}
}

// RandomTraceID 随机生成 TraceID
func RandomTraceID() trace.TraceID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return b
}

// RandomSpanID 随机生成 SpanID
func RandomSpanID() trace.SpanID {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return b
}
