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

// Package managerdriver implements the manager-side child driver: it
// spawns a worker process with the fixed child-fd map, drives
// the wire protocol over fds 3/4 through the same transport.Pipe the
// worker side uses, and fans every decoded message out to subscribers
// through internal/pubsub.
package managerdriver

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/acleone/sageserver/internal/pubsub"
	"github.com/acleone/sageserver/internal/rescue"
	"github.com/acleone/sageserver/internal/workerstats"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

func newError(format string, args ...any) error {
	return errors.Errorf("managerdriver: "+format, args...)
}

// ErrWorkerExited 由 Shutdown 在等待 worker 退出超时、改用 Kill 强杀之后返回
var ErrWorkerExited = newError("worker exited")

// Config 控制如何启动一个 worker 子进程
type Config struct {
	// Path 指向 worker 子命令的可执行文件 (通常是 os.Args[0] 自身 配合
	// "worker" 子命令 re-exec 回同一个二进制 见 cmd 层)
	Path string
	// Args 追加在 Path 之后的参数 (例如 "worker" 子命令名)
	Args []string
}

// Worker 代表被管理的一个 worker 子进程及其消息流
type Worker struct {
	ID string

	cfg  Config
	cmd  *exec.Cmd
	pipe *transport.Pipe
	pub  *pubsub.PubSub
	stat *Stats

	exited  chan struct{}
	waitMu  sync.Mutex
	waitErr error
}

// Spawn 启动一个 worker 子进程 按固定的 child fd map 接线：
// 0=stdin (留空) 1/2=stdout/stderr (经行缓冲适配器转入 logger)
// 3=inbound-messages read (子进程视角) 4=outbound-messages write
//
// 返回的 Worker 尚未开始收发：调用方必须调用 Run 启动其收发任务。
func Spawn(ctx context.Context, cfg Config, stat *Stats) (*Worker, error) {
	id := uuid.New().String()

	// manager 写 mIn -> 子进程 fd3 读 wIn
	wIn, mIn, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "managerdriver: create inbound pipe")
	}
	// 子进程 fd4 写 wOut -> manager 读 mOut
	mOut, wOut, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "managerdriver: create outbound pipe")
	}

	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	cmd.Stdin = nil
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "managerdriver: create stdout pipe")
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "managerdriver: create stderr pipe")
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.ExtraFiles = []*os.File{wIn, wOut} // fd3, fd4
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		wIn.Close()
		mIn.Close()
		mOut.Close()
		wOut.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, errors.Wrap(err, "managerdriver: start worker")
	}

	// parent keeps only the ends it reads/writes; the ends handed to the
	// child must be closed here or the pipe never sees EOF on worker exit.
	wIn.Close()
	wOut.Close()
	stdoutW.Close()
	stderrW.Close()

	w := &Worker{
		ID:     id,
		cfg:    cfg,
		cmd:    cmd,
		pub:    pubsub.New(),
		stat:   stat,
		exited: make(chan struct{}),
	}
	w.pipe = transport.NewPipe(mOut, mIn, w.dispatch, nil, w.shouldStop)

	go logLines("stdout", id, stdoutR)
	go logLines("stderr", id, stderrR)

	registerShutdownHook(id, func() { _ = cmd.Process.Kill() })
	go w.waitForExit()

	workerstats.WorkerSpawned()
	return w, nil
}

// logLines 把子进程的 stdout/stderr 按行转入 logger：fd 1/2 上是纯文本
// 日志 与 fd 4 上的帧消息分开处理
func logLines(stream, workerID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		logger.Infof("worker[%s] %s: %s", workerID, stream, scanner.Text())
	}
}

func (w *Worker) shouldStop() bool {
	select {
	case <-w.exited:
		return true
	default:
		return false
	}
}

// waitForExit 阻塞直到子进程退出 随后反注册 SIGKILL 钩子并关闭 exited
func (w *Worker) waitForExit() {
	err := w.cmd.Wait()
	w.waitMu.Lock()
	w.waitErr = err
	w.waitMu.Unlock()
	removeShutdownHook(w.ID)
	close(w.exited)
}

// dispatch 把每条解码完成的入站消息发布给所有订阅者 并计入统计
func (w *Worker) dispatch(m *msg.Message) {
	w.stat.MessageReceived(w.ID, msg.Type(m.Header.Type))
	w.pub.Publish(m)
}

// Subscribe 返回一个接收此 worker 所有解码消息的订阅队列
func (w *Worker) Subscribe(bufSize int) pubsub.Queue {
	return w.pub.Subscribe(bufSize)
}

// Unsubscribe 取消订阅
func (w *Worker) Unsubscribe(q pubsub.Queue) {
	w.pub.Unsubscribe(q)
}

// Send 把一条消息排入发往 worker 的发送队列 (manager->worker 方向)
func (w *Worker) Send(m *msg.Message) {
	w.stat.MessageSent(w.ID)
	w.pipe.Queue().Push(m)
}

// Run 启动收发任务 阻塞直到 worker 退出或传输失败；正常的 worker 退出
// (收发循环因 EOF 停止) 不是错误，返回 nil
func (w *Worker) Run(ctx context.Context) error {
	// SendLoop only exits on ctx cancellation, queue close, or a SHUTDOWN
	// message: tie its context to the worker's own exit as well so a
	// worker that dies without ever being sent SHUTDOWN doesn't wedge
	// this call forever.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.exited:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	var recvErr, sendErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		recvErr = w.pipe.ReceiveLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		defer rescue.HandleCrash()
		sendErr = w.pipe.SendLoop(runCtx)
	}()
	wg.Wait()

	<-w.exited

	if recvErr != nil && recvErr != transport.ErrClosed {
		return recvErr
	}
	if sendErr != nil && sendErr != transport.ErrClosed {
		return sendErr
	}
	return nil
}

// Done 在子进程退出后关闭 供调用方 select 等待
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

// Wait 阻塞直到子进程退出 返回其退出错误 (nil 表示正常退出码 0)
func (w *Worker) Wait() error {
	<-w.exited
	w.waitMu.Lock()
	defer w.waitMu.Unlock()
	return w.waitErr
}

// Kill 立即 SIGKILL 子进程 (供无法通过协议正常关闭时兜底使用)
func (w *Worker) Kill() error {
	if w.cmd.Process == nil {
		return nil
	}
	return w.cmd.Process.Kill()
}

// Shutdown 发送一条 SHUTDOWN 消息并等待子进程退出 超时后 Kill
func (w *Worker) Shutdown(timeout time.Duration) error {
	workerstats.ShutdownInitiated()
	w.Send(msg.NewShutdown(0.5, 0.5, 1))
	select {
	case <-w.exited:
		return w.Wait()
	case <-time.After(timeout):
		_ = w.Kill()
		return ErrWorkerExited
	}
}
