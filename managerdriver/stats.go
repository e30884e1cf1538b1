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
	"time"

	"github.com/acleone/sageserver/internal/labels"
	"github.com/acleone/sageserver/internal/metricstorage"
	"github.com/acleone/sageserver/msg"
)

// Stats 把每个 worker 的动态行为折射进 internal/metricstorage 按 worker
// id 打标签的计数器/直方图；storage 自带的 TTL 过期机制负责在 worker
// 退出、标签不再更新后把对应时间序列清理掉 —— 与 teacher 用同一套存储
// 给每条连接 (socket tuple) 维护统计量是同一个模式，这里把标签换成了
// worker id。Stats 为空指针时 (metricstorage 被配置关闭) 所有方法都是
// 空操作 调用方不需要做 nil 检查。
type Stats struct {
	storage *metricstorage.Storage
}

// NewStats 包装一个 (可能为 nil 的) *metricstorage.Storage
func NewStats(storage *metricstorage.Storage) *Stats {
	return &Stats{storage: storage}
}

func (s *Stats) update(cms ...metricstorage.ConstMetric) {
	if s == nil || s.storage == nil {
		return
	}
	s.storage.Update(cms...)
}

func (s *Stats) workerLabels(workerID string) labels.Labels {
	return labels.Labels{{Name: "worker_id", Value: workerID}}
}

// CellExecuted 记录一次 EXEC_CELL 被派发给某 worker
func (s *Stats) CellExecuted(workerID string) {
	s.update(metricstorage.ConstMetric{
		Model:  metricstorage.ModelCounter,
		Name:   "cells_executed_total",
		Labels: s.workerLabels(workerID),
		Value:  1,
	})
}

// MessageSent 记录一条 manager->worker 消息
func (s *Stats) MessageSent(workerID string) {
	s.update(metricstorage.ConstMetric{
		Model:  metricstorage.ModelCounter,
		Name:   "messages_sent_total",
		Labels: s.workerLabels(workerID),
		Value:  1,
	})
}

// MessageReceived 记录一条 worker->manager 解码出的消息 按类型名打标签
func (s *Stats) MessageReceived(workerID string, t msg.Type) {
	s.update(metricstorage.ConstMetric{
		Model:  metricstorage.ModelCounter,
		Name:   "messages_received_total",
		Labels: append(s.workerLabels(workerID), labels.Label{Name: "type", Value: t.String()}),
		Value:  1,
	})
}

// InterruptLatency 记录一次 INTERRUPT 从发出到收到 Yes/No 回复的耗时
func (s *Stats) InterruptLatency(workerID string, d time.Duration) {
	s.update(metricstorage.ConstMetric{
		Model:  metricstorage.ModelHistogram,
		Unit:   metricstorage.UnitSeconds,
		Name:   "interrupt_latency_seconds",
		Labels: s.workerLabels(workerID),
		Value:  d.Seconds(),
	})
}
