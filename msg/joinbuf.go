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

package msg

// JoinBuffer 按 chunk 累积字节 并支持弹出定长前缀
//
// 与 internal/bufbytes.Bytes 同属"累积器"家族，但语义不同：bufbytes 是
// 定容量、超出即截断，这里是不设容量上限的 FIFO，且 PopLeft 在跨越多个
// chunk 边界时只拷贝"跨界"的那一段，不对每次 Extend 做整体拷贝。
type JoinBuffer struct {
	chunks [][]byte
	total  int

	// off 是 chunks[0] 中尚未被消费的起始偏移
	off int
}

// NewJoinBuffer 创建一个空的 JoinBuffer
func NewJoinBuffer() *JoinBuffer {
	return &JoinBuffer{}
}

// Extend 追加一个新的 chunk
//
// 不拷贝 chunk 本身 调用方不应在 JoinBuffer 消费完之前复用该切片
func (j *JoinBuffer) Extend(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	j.chunks = append(j.chunks, chunk)
	j.total += len(chunk)
}

// Len 返回当前缓冲的总字节数
func (j *JoinBuffer) Len() int {
	return j.total
}

// PopLeft 弹出前 n 个字节 第二个返回值表示字节是否足够
//
// 如果 n 恰好落在单个 chunk 内部 直接返回该 chunk 的子切片 零拷贝；
// 如果 n 跨越了多个 chunk 的边界 只拷贝被跨越的区间 拼成一个新的切片。
func (j *JoinBuffer) PopLeft(n int) ([]byte, bool) {
	if n < 0 {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}
	if j.total < n {
		return nil, false
	}

	first := j.chunks[0]
	avail := len(first) - j.off

	// 命中单个 chunk 内部 零拷贝
	if n <= avail {
		b := first[j.off : j.off+n]
		j.advance(n)
		return b, true
	}

	// 跨越多个 chunk 只拷贝一次
	out := make([]byte, 0, n)
	remaining := n
	for remaining > 0 {
		c := j.chunks[0]
		cAvail := len(c) - j.off
		take := cAvail
		if take > remaining {
			take = remaining
		}
		out = append(out, c[j.off:j.off+take]...)
		j.advance(take)
		remaining -= take
	}
	return out, true
}

// advance 消费当前头部 chunk 的 n 字节 在耗尽时丢弃该 chunk
func (j *JoinBuffer) advance(n int) {
	j.off += n
	j.total -= n
	if j.off == len(j.chunks[0]) {
		j.chunks[0] = nil
		j.chunks = j.chunks[1:]
		j.off = 0
	}
}

// Reset 清空缓冲区
func (j *JoinBuffer) Reset() {
	j.chunks = nil
	j.total = 0
	j.off = 0
}
