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

package msg

// This file is the hand-written, build-time-free replacement for
// msg_generator's per-type constructors (SPEC_FULL.md, MODULE ADDITIONS):
// one small typed constructor per well-known request/control message.

// DisplayHookMode/AssignHookMode mirror the EXEC_CELL option enums
type DisplayHookMode string

const (
	DisplayHookLast DisplayHookMode = "LAST"
	DisplayHookAll  DisplayHookMode = "ALL"
	DisplayHookNone DisplayHookMode = "NONE"
)

type AssignHookMode string

const (
	AssignHookAll  AssignHookMode = "ALL"
	AssignHookNone AssignHookMode = "NONE"
)

// ExecCellOptions 是 ExecCell 请求体的类型化镜像，用于解码 (参见 execenv)
type ExecCellOptions struct {
	Source      string          `bson:"source" mapstructure:"source"`
	Cid         int             `bson:"cid" mapstructure:"cid"`
	EchoStdin   bool            `bson:"echo_stdin" mapstructure:"echo_stdin"`
	DisplayHook DisplayHookMode `bson:"displayhook" mapstructure:"displayhook"`
	AssignHook  AssignHookMode  `bson:"assignhook" mapstructure:"assignhook"`
	PrintAST    bool            `bson:"print_ast" mapstructure:"print_ast"`
	ExceptMsg   bool            `bson:"except_msg" mapstructure:"except_msg"`
}

// NewExecCell 构造一条 m->w 的 EXEC_CELL 请求 sid 由调用方(发起流的一方)分配
func NewExecCell(sid uint16, source string, cid int, echoStdin bool) *Message {
	doc := Doc{}.
		Set("source", source).
		Set("cid", int64(cid)).
		Set("echo_stdin", echoStdin).
		Set("displayhook", string(DisplayHookLast)).
		Set("assignhook", string(AssignHookAll)).
		Set("except_msg", true)
	return NewOnStream(TypeExecCell, sid, FlagSOpen, doc)
}

// NewShutdown 构造一条 m->w 的 SHUTDOWN 请求
func NewShutdown(beforeInt, intPoll float64, intRetries int) *Message {
	doc := Doc{}.
		Set("before_int", beforeInt).
		Set("int_poll", intPoll).
		Set("int_retries", int64(intRetries))
	return New(TypeShutdown, doc)
}

// NewInterrupt 构造一条 both-direction 的 INTERRUPT 消息
//
// m->w 时 sid 通常为 0 (带外控制信号)；w 用同一结构把它转发进 stdin
// 输入适配器的队列，因此字段与方向无关。
func NewInterrupt(retries int, pollFor, timeout float64) *Message {
	doc := Doc{}.
		Set("retries", int64(retries)).
		Set("poll_for", pollFor).
		Set("timeout", timeout)
	return New(TypeInterrupt, doc)
}

// NewIsComputing 构造一条 m->w 的 IS_COMPUTING 请求
func NewIsComputing(sid uint16) *Message {
	return NewOnStream(TypeIsComputing, sid, FlagSOpen, Doc{})
}

// NewStdin 构造一条 both-direction 的 STDIN 消息 空 payload 代表 EOF
func NewStdin(sid uint16, payload []byte) *Message {
	doc := Doc{}.Set("bytes", payload)
	return NewOnStream(TypeStdin, sid, 0, doc)
}

// NewGetCompletions 构造一条 m->w 的 GET_COMPLETIONS 请求
func NewGetCompletions(sid uint16, text, format string) *Message {
	if format == "" {
		format = "TEXT"
	}
	doc := Doc{}.Set("text", text).Set("format", format)
	return NewOnStream(TypeGetCompletions, sid, FlagSOpen, doc)
}

// NewGetDoc 构造一条 m->w 的 GET_DOC 请求
func NewGetDoc(sid uint16, object, format string) *Message {
	if format == "" {
		format = "TEXT"
	}
	doc := Doc{}.Set("object", object).Set("format", format)
	return NewOnStream(TypeGetDoc, sid, FlagSOpen, doc)
}

// NewGetSource 构造一条 m->w 的 GET_SOURCE 请求
func NewGetSource(sid uint16, object, format string) *Message {
	if format == "" {
		format = "TEXT"
	}
	doc := Doc{}.Set("object", object).Set("format", format)
	return NewOnStream(TypeGetSource, sid, FlagSOpen, doc)
}
