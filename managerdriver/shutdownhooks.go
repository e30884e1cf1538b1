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

import "sync"

// shutdownHooks 是进程级的注册表：每个存活的 Worker 在 Spawn 时注册一个
// SIGKILL-它自己-的钩子 在它退出时反注册。manager 进程
// 的信号处理代码 (cmd 层) 在收到终止信号时调用 RunShutdownHooks 确保
// manager 退出时不会留下孤儿 worker 进程。
var shutdownHooks sync.Map // id string -> func()

func registerShutdownHook(id string, fn func()) {
	shutdownHooks.Store(id, fn)
}

func removeShutdownHook(id string) {
	shutdownHooks.Delete(id)
}

// RunShutdownHooks 调用当前注册的每一个钩子 供 manager 进程退出前调用
func RunShutdownHooks() {
	shutdownHooks.Range(func(_, v any) bool {
		v.(func())()
		return true
	})
}
