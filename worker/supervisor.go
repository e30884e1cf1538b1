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

// Package worker implements the worker-side supervisor: three concurrent
// tasks — receive, send, main-compute — coordinated
// through a main queue and the transport's send queue.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/acleone/sageserver/execenv"
	"github.com/acleone/sageserver/internal/rescue"
	"github.com/acleone/sageserver/internal/sigs"
	"github.com/acleone/sageserver/internal/workerstats"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

// pollStep 是中断算法/关闭序列轮询 main_receiving/main_dead 时的步长
const pollStep = 10 * time.Millisecond

// selfKill 是 sigs.SelfKill 的一层间接 测试里替换成无害的桩
// 避免真的把测试进程本身干掉
var selfKill = sigs.SelfKill

// builtinTypes 由 supervisor 内联处理 不经过 exec-env 的任何 handler 表
var builtinTypes = map[msg.Type]bool{
	msg.TypeShutdown:    true,
	msg.TypeInterrupt:   true,
	msg.TypeIsComputing: true,
}

// Supervisor 把一条 Pipe 与一个 execenv.Env 粘合成完整的三任务 worker
//
// mainQ 复用 transport.SendQueue：它本身就是一个不区分用途的无界
// *msg.Message FIFO，用来做 main_q 和做发送队列没有任何区别——唯一的
// 区别是谁在消费它。
type Supervisor struct {
	pipe *transport.Pipe
	env  *execenv.Env

	mainQ *transport.SendQueue

	shutdownCalled atomic.Bool
	mainDead       atomic.Bool
	mainReceiving  atomic.Bool
}

// NewSupervisor 创建一个 Supervisor pipe 的 dispatch 回调必须指向
// s.dispatch —— 调用方应当用 NewPipeFor 而不是直接构造 transport.Pipe
func NewSupervisor(env *execenv.Env) *Supervisor {
	return &Supervisor{
		env:   env,
		mainQ: transport.NewSendQueue(),
	}
}

// Attach 绑定底层 Pipe supervisor 的 dispatch 方法必须是该 Pipe 的回调
// 分两步构造是因为 Pipe 的 dispatch 回调需要闭包住 Supervisor 自身。
func (s *Supervisor) Attach(pipe *transport.Pipe) {
	s.pipe = pipe
}

// NewPipeFor 是构造顺序助手：先创建 Supervisor 再用它的 dispatch/shutdown
// 谓词构造 Pipe 最后 Attach 回去，避免鸡生蛋的初始化顺序问题
func NewPipeFor(s *Supervisor, in interface {
	Read([]byte) (int, error)
}, out interface {
	Write([]byte) (int, error)
}) *transport.Pipe {
	p := transport.NewPipe(in, out, s.dispatch, s.KnownTypes(), s.receiveShouldStop)
	s.Attach(p)
	s.env.Attach(p.Queue())
	return p
}

// KnownTypes 汇总 supervisor 自己内联处理的类型与 exec-env 两张 handler
// 表覆盖的类型 作为解码器的"已知类型"表：表外的类型会被解码器直接丢弃
// 并记录告警 而不会走到 dispatch 的 default 分支再丢一次
func (s *Supervisor) KnownTypes() map[msg.Type]bool {
	known := make(map[msg.Type]bool)
	for t := range builtinTypes {
		known[t] = true
	}
	for t := range s.env.MainHandlerTable() {
		known[t] = true
	}
	for t := range s.env.ReceiveHandlerTable() {
		known[t] = true
	}
	return known
}

// Queue 返回底层发送队列 供外部（如 cmd 层的驱动脚本）直接入队消息使用
func (s *Supervisor) Queue() *transport.SendQueue {
	return s.pipe.Queue()
}

// Run 启动三个任务 阻塞直到全部退出 返回折叠后的错误 (nil 代表正常关闭)
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var result *multierror.Error

	record := func(err error) {
		if err == nil || err == transport.ErrClosed {
			return
		}
		mu.Lock()
		result = multierror.Append(result, err)
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		record(s.pipe.ReceiveLoop(ctx))
	}()
	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		record(s.pipe.SendLoop(ctx))
	}()
	go func() {
		defer wg.Done()
		s.mainLoop()
	}()

	wg.Wait()
	return result.ErrorOrNil()
}

func (s *Supervisor) receiveShouldStop() bool {
	return s.mainDead.Load()
}

// dispatch 实现消息路由：由 receive task 对每条完成解码
// 的入站消息调用
func (s *Supervisor) dispatch(m *msg.Message) {
	t := msg.Type(m.Header.Type)

	switch {
	case builtinTypes[t]:
		s.handleBuiltin(t, m)
	case s.env.MainHandlerTable()[t]:
		s.mainQ.Push(m)
	default:
		if h, ok := s.env.ReceiveHandlerTable()[t]; ok {
			h(m)
			return
		}
		logger.Warnf("worker: dropping message of unrecognized type %d (sid=%d)", m.Header.Type, m.Header.Sid)
	}
}

func (s *Supervisor) handleBuiltin(t msg.Type, m *msg.Message) {
	switch t {
	case msg.TypeShutdown:
		s.initiateShutdown(m)
	case msg.TypeIsComputing:
		if s.mainReceiving.Load() {
			s.pipe.Queue().Push(msg.NewNo(0).AsReplyTo(m))
		} else {
			s.pipe.Queue().Push(msg.NewYes(0).AsReplyTo(m))
		}
	case msg.TypeInterrupt:
		s.handleInterrupt(m)
	}
}

func (s *Supervisor) mainLoop() {
	for {
		s.mainReceiving.Store(true)
		m, ok := s.mainQ.Pop(context.Background())
		s.mainReceiving.Store(false)
		if !ok {
			break
		}
		// Shutdown 哨兵只看 Type 绝不解码 body：body 可能正同时被 send
		// task 编码 (同一个 *msg.Message 被推进了两个队列)。
		if m.Header.Type == uint16(msg.TypeShutdown) {
			break
		}

		s.runCell(m)
	}
	s.mainDead.Store(true)
}

func (s *Supervisor) runCell(m *msg.Message) {
	defer rescue.HandleCrash()
	s.env.ExecCell(m)
}

// handleInterrupt 实现 built-in INTERRUPT: 最多尝试 retries 轮中断算法
func (s *Supervisor) handleInterrupt(req *msg.Message) {
	retries, pollFor, _ := interruptParams(req)

	ok := false
	for i := 0; i < retries; i++ {
		if s.interruptRound(pollFor) {
			ok = true
			break
		}
	}

	if ok {
		s.pipe.Queue().Push(msg.NewYes(0).AsReplyTo(req))
	} else {
		s.pipe.Queue().Push(msg.NewNo(0).AsReplyTo(req))
	}
}

// interruptRound 是中断算法的单轮实现
func (s *Supervisor) interruptRound(pollFor time.Duration) bool {
	workerstats.InterruptAttempted()
	if s.mainReceiving.Load() {
		return true
	}
	s.env.Interrupt()
	return s.pollMainReceiving(pollFor)
}

func (s *Supervisor) pollMainReceiving(timeout time.Duration) bool {
	return pollUntil(timeout, s.mainReceiving.Load)
}

func (s *Supervisor) pollMainDead(timeout time.Duration) bool {
	return pollUntil(timeout, s.mainDead.Load)
}

func pollUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return cond()
		}
		time.Sleep(pollStep)
	}
}

func interruptParams(m *msg.Message) (retries int, pollFor, timeout time.Duration) {
	retries = 1
	if v, ok, _ := m.Get("retries"); ok {
		if n, ok := toInt(v); ok {
			retries = n
		}
	}
	if v, ok, _ := m.Get("poll_for"); ok {
		if f, ok := toFloat(v); ok {
			pollFor = time.Duration(f * float64(time.Second))
		}
	}
	if v, ok, _ := m.Get("timeout"); ok {
		if f, ok := toFloat(v); ok {
			timeout = time.Duration(f * float64(time.Second))
		}
	}
	return retries, pollFor, timeout
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// initiateShutdown 实现关闭序列 幂等：只有第一次调用生效
func (s *Supervisor) initiateShutdown(m *msg.Message) {
	if !s.shutdownCalled.CompareAndSwap(false, true) {
		return
	}
	workerstats.ShutdownInitiated()
	go s.runShutdownSequence(m)
}

func (s *Supervisor) runShutdownSequence(m *msg.Message) {
	beforeInt, intPoll, intRetries := shutdownParams(m)

	s.mainQ.PushFront(m)
	s.pipe.Queue().PushFront(m)

	if s.pollMainDead(beforeInt) {
		return
	}

	for i := 0; i < intRetries; i++ {
		s.interruptRound(0)
		if s.pollMainDead(intPoll) {
			return
		}
	}

	logger.Errorf("worker: main task still alive after %d interrupt retries, self-killing", intRetries)
	time.Sleep(100 * time.Millisecond)
	if err := selfKill(); err != nil {
		logger.Errorf("worker: self-kill failed: %v", err)
	}
}

func shutdownParams(m *msg.Message) (beforeInt, intPoll time.Duration, intRetries int) {
	beforeInt = time.Second
	intPoll = 200 * time.Millisecond
	intRetries = 3

	if v, ok, _ := m.Get("before_int"); ok {
		if f, ok := toFloat(v); ok {
			beforeInt = time.Duration(f * float64(time.Second))
		}
	}
	if v, ok, _ := m.Get("int_poll"); ok {
		if f, ok := toFloat(v); ok {
			intPoll = time.Duration(f * float64(time.Second))
		}
	}
	if v, ok, _ := m.Get("int_retries"); ok {
		if n, ok := toInt(v); ok {
			intRetries = n
		}
	}
	return beforeInt, intPoll, intRetries
}
