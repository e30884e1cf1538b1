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

// Package execenv holds the per-worker execution environment: the cell
// executor, the receive/main handler tables, and traceback formatting.
package execenv

import (
	"context"
	"time"
)

// maxSleepSlice 是 interruptible sleep 的最大分片长度
const maxSleepSlice = 250 * time.Millisecond

// SleepInterruptible 把 d 切成不超过 maxSleepSlice 的小段 每段之间检查
// ctx 是否被取消 使得一次长时间的等待也能在有界时间内响应中断
func SleepInterruptible(ctx context.Context, d time.Duration) error {
	for d > 0 {
		slice := d
		if slice > maxSleepSlice {
			slice = maxSleepSlice
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		d -= slice
	}
	return nil
}
