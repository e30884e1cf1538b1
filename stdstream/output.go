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

// Package stdstream reroutes a worker's standard streams through the
// manager<->worker transport instead of the process's real fds: an output
// adapter for stdout/stderr and an input adapter for stdin.
package stdstream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

// Output 把 write() 调用转换成发往 send queue 的 Stdout/Stderr 消息
//
// flush 是空操作：transport 本身就是这里唯一的缓冲层。
type Output struct {
	sid   uint16
	typ   msg.Type
	queue *transport.SendQueue
}

// NewStdoutOutput/NewStderrOutput 分别创建绑定到某个 stream sid 的输出适配器
func NewStdoutOutput(sid uint16, queue *transport.SendQueue) *Output {
	return &Output{sid: sid, typ: msg.TypeStdout, queue: queue}
}

func NewStderrOutput(sid uint16, queue *transport.SendQueue) *Output {
	return &Output{sid: sid, typ: msg.TypeStderr, queue: queue}
}

// Write 把 chunk 原样作为一条消息的 bytes 字段发出 实现 io.Writer
func (o *Output) Write(chunk []byte) (int, error) {
	var m *msg.Message
	if o.typ == msg.TypeStdout {
		m = msg.NewStdout(o.sid, chunk)
	} else {
		m = msg.NewStderr(o.sid, chunk)
	}
	o.queue.Push(m)
	return len(chunk), nil
}

// WriteString 把文本编码为 UTF-8 无效字节序列以替换字符写出后发送
func (o *Output) WriteString(s string) (int, error) {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	return o.Write([]byte(s))
}

// WriteLines 等价于 Write(join(chunks))：一次 write 对应一条消息
func (o *Output) WriteLines(chunks [][]byte) (int, error) {
	return o.Write(bytes.Join(chunks, nil))
}

// Flush 是空操作
func (o *Output) Flush() error {
	return nil
}
