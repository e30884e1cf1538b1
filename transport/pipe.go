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

package transport

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/acleone/sageserver/common"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/msg"
)

func newError(format string, args ...any) error {
	return errors.Errorf("transport: "+format, args...)
}

// ErrClosed 由 ReceiveLoop/SendLoop 在对端/队列正常关闭时返回 不代表故障
var ErrClosed = newError("closed")

// Pipe 把一对单向管道 (in 读 out 写) 与一个 msg.Decoder/SendQueue 粘合
// 成一条完整的传输：对应 receive task / send task
//
// 与 protocol/pmysql 的 decoder 驱动方式相同：循环读取定长 chunk 喂给
// 状态机 不同之处在于这里的"连接"是一对单向管道 fd (worker 侧为 fd3/fd4) 而不是 TCP
// 套接字，也没有连接表——一条 Pipe 只服务一对 manager<->worker。
type Pipe struct {
	in  io.Reader
	out io.Writer

	decoder *msg.Decoder
	queue   *SendQueue

	// shutdownCheck 在每次读之间被轮询 返回 true 时 receive loop 提前退出
	// 即便对端尚未关闭 fd (关闭序列需要提前终止接收任务)
	shutdownCheck func() bool
}

// NewPipe 创建一条 Pipe dispatch 在每条消息解码完成时被调用
func NewPipe(in io.Reader, out io.Writer, dispatch func(*msg.Message), known map[msg.Type]bool, shutdownCheck func() bool) *Pipe {
	return &Pipe{
		in:            in,
		out:           out,
		decoder:       msg.NewDecoder(dispatch, known),
		queue:         NewSendQueue(),
		shutdownCheck: shutdownCheck,
	}
}

// Queue 返回底层的发送队列 供生产者 Push
func (p *Pipe) Queue() *SendQueue {
	return p.queue
}

// ReceiveLoop 以最多 common.ReadWriteBlockSize 字节为单位循环读取 in
//
// 返回 ErrClosed 当 in 正常 EOF 或 shutdownCheck 命中；返回其余错误时
// transport 应被视为不可恢复 (读错误或 msg.Decoder 报告的 CorruptHeader)
func (p *Pipe) ReceiveLoop(ctx context.Context) error {
	buf := make([]byte, common.ReadWriteBlockSize)
	for {
		if ctx.Err() != nil {
			return ErrClosed
		}
		if p.shutdownCheck != nil && p.shutdownCheck() {
			return ErrClosed
		}

		n, err := p.in.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if ferr := p.decoder.Feed(chunk); ferr != nil {
				return errors.Wrap(ferr, "transport: decode failed")
			}
		}
		if err != nil {
			if err == io.EOF {
				return ErrClosed
			}
			return errors.Wrap(err, "transport: read failed")
		}
	}
}

// SendLoop 不断从发送队列取出消息 编码并写到 out 直到队列关闭
//
// 一次 Pop 之后会机会性地 (非阻塞) 再取若干条一起写 以减少 syscall 次数
// 但绝不打乱顺序；一旦批次里出现 SHUTDOWN 立即停止攒批 写出并退出循环
// 不再等待后续消息 ("不得饿死 SHUTDOWN"不变式)。
func (p *Pipe) SendLoop(ctx context.Context) error {
	const maxBatch = 32

	for {
		m, ok := p.queue.Pop(ctx)
		if !ok {
			return ErrClosed
		}

		batch := []*msg.Message{m}
		sawShutdown := m.Header.Type == uint16(msg.TypeShutdown)
		for !sawShutdown && len(batch) < maxBatch {
			next, ok := p.queue.TryPop()
			if !ok {
				break
			}
			batch = append(batch, next)
			if next.Header.Type == uint16(msg.TypeShutdown) {
				sawShutdown = true
			}
		}

		if err := p.writeBatch(batch); err != nil {
			return err
		}
		if sawShutdown {
			return ErrClosed
		}
	}
}

func (p *Pipe) writeBatch(batch []*msg.Message) error {
	var buf []byte
	for _, m := range batch {
		body, err := m.Bytes()
		if err != nil {
			logger.Errorf("transport: dropping unsendable message (sid=%d type=%d): %v", m.Header.Sid, m.Header.Type, err)
			continue
		}
		hdr, err := msg.Encode(m.Header.Type, m.Header.Sid, uint32(len(body)), m.Header.Flags)
		if err != nil {
			logger.Errorf("transport: dropping unsendable message (sid=%d type=%d): %v", m.Header.Sid, m.Header.Type, err)
			continue
		}
		buf = append(buf, hdr...)
		buf = append(buf, body...)
	}
	return p.writeAll(buf)
}

// writeAll 容忍短写 循环直到全部字节写出或发生错误
func (p *Pipe) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := p.out.Write(b)
		if err != nil {
			return errors.Wrap(err, "transport: write failed")
		}
		b = b[n:]
	}
	return nil
}
