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

package managerdriver

import (
	"context"
	"sync"
	"time"

	"github.com/acleone/sageserver/internal/rescue"
	"github.com/acleone/sageserver/logger"
)

// Pool 跟踪由同一个 manager 进程管理的一组 worker 子进程 按 id 索引
//
// 对应 teacher 里按连接元组索引 session 的模式 (processor 系列)，这里
// 的"连接元组"是 worker id。
type Pool struct {
	cfg  Config
	stat *Stats

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewPool 创建一个空 Pool 每个成员用 cfg 启动 统计量汇入 stat
func NewPool(cfg Config, stat *Stats) *Pool {
	return &Pool{cfg: cfg, stat: stat, workers: make(map[string]*Worker)}
}

// SpawnWorker 启动一个新 worker 登记进 pool 并启动它的收发任务
func (p *Pool) SpawnWorker(ctx context.Context) (*Worker, error) {
	w, err := Spawn(ctx, p.cfg, p.stat)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.workers[w.ID] = w
	p.mu.Unlock()

	go func() {
		defer rescue.HandleCrash()
		if err := w.Run(ctx); err != nil {
			logger.Errorf("managerdriver: worker %s transport ended with error: %v", w.ID, err)
		}
		p.mu.Lock()
		delete(p.workers, w.ID)
		p.mu.Unlock()
	}()

	return w, nil
}

// Get 按 id 查找一个仍在登记的 worker
func (p *Pool) Get(id string) (*Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[id]
	return w, ok
}

// Len 返回当前登记的 worker 数
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Shutdown 向所有登记的 worker 发送 SHUTDOWN 并等待它们全部退出或超时
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	all := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		all = append(all, w)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(all))
	for _, w := range all {
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Shutdown(timeout); err != nil {
				logger.Warnf("managerdriver: worker %s did not shut down cleanly: %v", w.ID, err)
			}
			p.mu.Lock()
			delete(p.workers, w.ID)
			p.mu.Unlock()
		}(w)
	}
	wg.Wait()
}
