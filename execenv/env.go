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

package execenv

import (
	"context"
	"sync"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/acleone/sageserver/internal/tracekit"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/stdstream"
	"github.com/acleone/sageserver/transport"
)

// inputReader 把 stdstream.Input 的 Read(n) 适配成标准的 io.Reader
type inputReader struct {
	in *stdstream.Input
}

func (r inputReader) Read(p []byte) (int, error) {
	b, err := r.in.Read(len(p))
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	return copy(p, b), nil
}

// Env 持有一个 worker 进程在其生命周期内的持久执行环境
//
// 对应 compnode/worker/exec_env.py：持久 globals 在子进程执行模型下没有
// 直接对应物——persistentEnv 字段不被任何代码写入 也不传给 executor，
// 子进程只继承 ShellExecutor 自己的 Env 列表；displayhook/assignhook 的细粒度
// REPL 语义在子进程执行模型下没有自然的对应物，仅作为已解码但不深度
// 解释的选项保留 (DESIGN.md 有专门说明)。
type Env struct {
	queue    *transport.SendQueue
	executor Executor

	mu            sync.Mutex
	persistentEnv []string
	activeInput   *stdstream.Input
	activeStream  *msg.Stream
	cancelActive  context.CancelFunc
}

// NewEnv 创建一个绑定到给定发送队列与执行器的 Env queue 可以为 nil：
// 当调用方还没有现成的发送队列时 (典型情况是 Env 要先于承载它的
// transport.Pipe 构造出来) 用 Attach 在 Pipe 就绪后补上。
func NewEnv(queue *transport.SendQueue, executor Executor) *Env {
	return &Env{queue: queue, executor: executor}
}

// Attach 绑定 Env 实际要推送消息的发送队列 用于 Env 先于 Pipe 构造、
// 拿不到 Pipe.Queue() 的场景 (worker.NewPipeFor 在 Pipe 就绪后调用)
func (e *Env) Attach(queue *transport.SendQueue) {
	e.queue = queue
}

// MainHandlerTable 列出由 main task 处理的消息类型
func (e *Env) MainHandlerTable() map[msg.Type]bool {
	return map[msg.Type]bool{msg.TypeExecCell: true}
}

// ReceiveHandlerTable 列出由 receive task 同步处理的消息类型及其处理函数
func (e *Env) ReceiveHandlerTable() map[msg.Type]func(*msg.Message) {
	return map[msg.Type]func(*msg.Message){
		msg.TypeStdin:          e.handleStdin,
		msg.TypeGetCompletions: e.handleGetCompletions,
		msg.TypeGetDoc:         e.handleGetDoc,
		msg.TypeGetSource:      e.handleGetSource,
	}
}

// InputWaiting 报告当前活跃的 stdin 输入适配器是否正阻塞在 read 上
// worker supervisor 的中断算法据此在策略 (b)/(c) 之间选择
func (e *Env) InputWaiting() bool {
	e.mu.Lock()
	in := e.activeInput
	e.mu.Unlock()
	return in != nil && in.Waiting()
}

// Interrupt 对当前活跃的 cell 执行实施中断：优先唤醒阻塞的 stdin.read
// 否则取消执行上下文 (对 ShellExecutor 而言即向子进程组发 SIGINT)
func (e *Env) Interrupt() {
	e.mu.Lock()
	in := e.activeInput
	cancel := e.cancelActive
	e.mu.Unlock()

	if in != nil && in.Waiting() {
		in.FeedInterrupt()
		return
	}
	if cancel != nil {
		cancel()
	}
}

func (e *Env) handleStdin(m *msg.Message) {
	e.mu.Lock()
	in := e.activeInput
	stream := e.activeStream
	e.mu.Unlock()

	if in == nil || stream == nil || m.Header.Sid != stream.Sid() {
		logger.Warnf("execenv: Stdin for sid=%d with no active input adapter", m.Header.Sid)
		return
	}
	payload, _, err := m.Get("bytes")
	if err != nil {
		logger.Errorf("execenv: malformed Stdin message: %v", err)
		return
	}
	b, _ := payload.([]byte)
	in.FeedStdin(b)
}

// handleGetCompletions/handleGetDoc/handleGetSource 各自把请求自己的 sid
// 包成一条一次性 msg.Stream 再用 Close 发出终态回复：通用 shell 子进程
// 执行模型没有可供内省的符号表 因此统一回复"未找到" 与 displayhook/
// assignhook 同理记录在 DESIGN.md 中作为一处有意的简化。
func (e *Env) handleGetCompletions(m *msg.Message) {
	text, _, _ := m.Get("text")
	format, _, _ := m.Get("format")
	stream := msg.NewStream(m.Header.Sid, e.queue)
	stream.Close(msg.NewCompletions(m.Header.Sid, toString(text), toString(format), nil))
}

func (e *Env) handleGetDoc(m *msg.Message) {
	object, _, _ := m.Get("object")
	format, _, _ := m.Get("format")
	stream := msg.NewStream(m.Header.Sid, e.queue)
	stream.Close(msg.NewDocReply(m.Header.Sid, toString(object), toString(format), false, ""))
}

func (e *Env) handleGetSource(m *msg.Message) {
	object, _, _ := m.Get("object")
	format, _, _ := m.Get("format")
	stream := msg.NewStream(m.Header.Sid, e.queue)
	stream.Close(msg.NewSourceReply(m.Header.Sid, toString(object), toString(format), false, ""))
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

// ExecCell 是 main-handler 表里 ExecCell 的实现：main task 调用它 它是
// 唯一会阻塞在用户代码上的函数
func (e *Env) ExecCell(req *msg.Message) {
	sid := req.Header.Sid
	tc := tracekit.NewTraceContext(sid)
	logger.Debugf("execenv: ExecCell start sid=%d trace_id=%x span_id=%x", sid, tc.TraceID, tc.SpanID)

	var opts msg.ExecCellOptions
	doc, err := req.Doc()
	if err != nil {
		logger.Errorf("execenv: undecodable ExecCell body: %v", err)
		e.queue.Push(msg.NewDone(sid).AsReplyTo(req))
		return
	}
	if err := mapstructure.Decode(docToMap(doc), &opts); err != nil {
		logger.Errorf("execenv: malformed ExecCell options: %v", err)
		e.queue.Push(msg.NewDone(sid).AsReplyTo(req))
		return
	}
	if opts.DisplayHook == "" {
		opts.DisplayHook = msg.DisplayHookLast
	}
	if opts.AssignHook == "" {
		opts.AssignHook = msg.AssignHookAll
	}

	stdoutAdapter := stdstream.NewStdoutOutput(sid, e.queue)
	stderrAdapter := stdstream.NewStderrOutput(sid, e.queue)
	stdinAdapter := stdstream.NewInput(sid, opts.EchoStdin, e.queue)
	stream := msg.NewStream(sid, e.queue)

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.activeInput = stdinAdapter
	e.activeStream = stream
	e.cancelActive = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.activeInput = nil
		e.activeStream = nil
		e.cancelActive = nil
		e.mu.Unlock()
		cancel()
		stream.Close(msg.NewDone(sid).AsReplyTo(req))
	}()

	runErr := e.executor.Run(ctx, opts.Source, inputReader{stdinAdapter}, stdoutAdapter, stderrAdapter)
	if runErr == nil {
		return
	}

	if runErr == context.Canceled {
		return
	}

	stack, etype, value, syntax := classifyError(runErr)
	logger.Warnf("execenv: ExecCell failed sid=%d trace_id=%x etype=%s", sid, tc.TraceID, etype)
	if opts.ExceptMsg {
		stream.Send(msg.NewExcept(sid, msg.ExceptFields{
			Stderr: runErr.Error(),
			Stack:  stack,
			Etype:  etype,
			Value:  value,
			Syntax: syntax,
		}).AsReplyTo(req))
	} else {
		stderrAdapter.WriteString(formatPlainTraceback(stack, etype, value))
	}
}

func docToMap(doc bson.D) map[string]any {
	m := make(map[string]any, len(doc))
	for _, e := range doc {
		m[e.Key] = e.Value
	}
	return m
}
