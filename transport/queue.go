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

// Package transport carries msg.Message values across the two
// one-directional pipes that connect a manager to a worker: an unbounded
// send queue plus a receive/send task pair built on top of it.
package transport

import (
	"container/list"
	"context"
	"sync"

	"github.com/acleone/sageserver/msg"
)

// SendQueue 是一个无界 线程安全的 FIFO 接受来自任意 goroutine 的消息
//
// 与 internal/pubsub.Queue 同属"可关闭的消息队列"家族，但 Push 语义不同：
// pubsub.channel 在队列满时静默丢弃 (best-effort 广播)，这里的队列必须
// 保证每一条 Push 过的消息最终都能被 Pop 到——发送队列决不能丢消息。
// 用 container/list 而不是带缓冲 channel 正是为了去掉容量上限。
type SendQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// NewSendQueue 创建一个空的 SendQueue
func NewSendQueue() *SendQueue {
	q := &SendQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 把一条消息追加到队尾 关闭后的 Push 是空操作
func (q *SendQueue) Push(m *msg.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items.PushBack(m)
	q.cond.Signal()
}

// PushFront 把一条消息插到队首 用于避免高优先级消息 (如 SHUTDOWN) 被
// 大量积压的普通消息饿死
func (q *SendQueue) PushFront(m *msg.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items.PushFront(m)
	q.cond.Signal()
}

// Pop 阻塞直到队列非空或被关闭/ctx 取消
//
// 第二个返回值为 false 代表队列已关闭且耗尽 调用方应当退出发送循环。
func (q *SendQueue) Pop(ctx context.Context) (*msg.Message, bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		if ctx.Err() != nil {
			return nil, false
		}
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}

	front := q.items.Remove(q.items.Front())
	return front.(*msg.Message), true
}

// TryPop 非阻塞地弹出一条消息 队列为空时返回 false
func (q *SendQueue) TryPop() (*msg.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil, false
	}
	front := q.items.Remove(q.items.Front())
	return front.(*msg.Message), true
}

// Len 返回当前排队的消息数
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close 关闭队列并唤醒所有等待者 已入队但尚未 Pop 的消息仍可被取出
func (q *SendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
