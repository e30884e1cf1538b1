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

package common

const (
	// App 应用程序名称
	App = "sageworker"

	// Version 应用程序版本
	Version = "v0.0.1"

	// ReadWriteBlockSize 接收任务单次从 pipe fd 中读取的字节数上限
	ReadWriteBlockSize = 4096

	// MaxBodySize 单条消息 body 的最大字节数 (4 MiB)
	//
	// 对应 header.length 的硬上限 超过此值 decode 会返回 BodyTooLarge
	MaxBodySize = 4 << 20
)
