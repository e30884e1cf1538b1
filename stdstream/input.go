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

package stdstream

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

func newError(format string, args ...any) error {
	return errors.Errorf("stdstream: "+format, args...)
}

// ErrInterrupted 由 Read 返回 当一个正在阻塞的 read 被 Interrupt 消息取消
var ErrInterrupted = newError("interrupted")

type inputEvent struct {
	payload []byte
	eof     bool
	interrupt bool
}

// Input 是 stdin 输入适配器：内部 join-buffer + 阻塞输入队列
//
// 调用约定：Read 只应该从 main task 的 goroutine 调用 (对应
// invariant)；FeedStdin/FeedInterrupt 则由 receive task 同步调用，二者
// 通过 events channel 解耦，从不互相阻塞对方太久。
type Input struct {
	sid       uint16
	echoStdin bool
	queue     *transport.SendQueue

	buf *msg.JoinBuffer
	eof bool

	events chan inputEvent

	waiting atomic.Bool
}

// NewInput 创建一个绑定到某个 stream sid 的 stdin 输入适配器
func NewInput(sid uint16, echoStdin bool, queue *transport.SendQueue) *Input {
	return &Input{
		sid:       sid,
		echoStdin: echoStdin,
		queue:     queue,
		buf:       msg.NewJoinBuffer(),
		events:    make(chan inputEvent, 16),
	}
}

// Waiting 报告 Read 当前是否正阻塞在输入队列上 supervisor 据此选择中断策略
func (in *Input) Waiting() bool {
	return in.waiting.Load()
}

// FeedStdin 由 receive task 在收到一条 inbound Stdin 消息时调用
//
// 空 payload 代表 EOF。非阻塞：队列满时记录告警并丢弃，
// 这种情况只会在对端不遵守"一次 NeedStdin 换一次 Stdin"协议时发生。
func (in *Input) FeedStdin(payload []byte) {
	ev := inputEvent{eof: len(payload) == 0}
	if !ev.eof {
		ev.payload = append([]byte(nil), payload...)
	}
	in.push(ev)
}

// FeedInterrupt 由 receive task 在收到一条 Interrupt 消息时调用
func (in *Input) FeedInterrupt() {
	in.push(inputEvent{interrupt: true})
}

func (in *Input) push(ev inputEvent) {
	select {
	case in.events <- ev:
	default:
		logger.Warnf("stdstream: input queue full for sid=%d, dropping event", in.sid)
	}
}

// Read 消费最多 n 字节 n<0 代表读到 EOF 为止 n==0 直接返回空且不产生任何
// transport 流量
func (in *Input) Read(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	needStdinSent := false

	for {
		if in.satisfied(n) {
			return in.pop(n)
		}
		if in.eof {
			return in.pop(-1)
		}

		if !needStdinSent {
			in.emitNeedStdin(n)
			needStdinSent = true
		}

		in.waiting.Store(true)
		ev := <-in.events
		in.waiting.Store(false)

		switch {
		case ev.interrupt:
			return nil, ErrInterrupted
		case ev.eof:
			in.eof = true
		default:
			in.buf.Extend(ev.payload)
			// A chunk just arrived but may still be short of n (or, for
			// n<0, the peer may still have more to send before EOF): the
			// loop goes around again and must re-emit NeedStdin rather
			// than silently waiting forever on a need it already
			// considers sent.
			needStdinSent = false
		}
	}
}

func (in *Input) satisfied(n int) bool {
	if n < 0 {
		return false
	}
	return in.buf.Len() >= n
}

// pop 取出 consumed 字节并在需要时回显；n<0 取出当前缓冲区中的全部字节
func (in *Input) pop(n int) ([]byte, error) {
	want := n
	if want < 0 || want > in.buf.Len() {
		want = in.buf.Len()
	}
	consumed, ok := in.buf.PopLeft(want)
	if !ok {
		consumed = []byte{}
	}

	if in.echoStdin {
		in.queue.Push(msg.NewStdin(in.sid, consumed))
		if in.eof && in.buf.Len() == 0 {
			in.queue.Push(msg.NewStdin(in.sid, nil))
		}
	}
	return consumed, nil
}

func (in *Input) emitNeedStdin(n int) {
	in.queue.Push(msg.NewNeedStdin(in.sid, n))
}
