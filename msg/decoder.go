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

import (
	"github.com/acleone/sageserver/logger"
)

// decodeState 是 Decoder 的两态状态机
type decodeState uint8

const (
	stateWantHeader decodeState = iota
	stateWantBody
)

// Decoder 把任意大小的字节 chunk 组装成完整的 Message
//
// 与 pmysql/pdns 的 decoder 同属"状态机 + 容错重置"家族：stateWantHeader
// 对应它们的 stateDecodeHeader，stateWantBody 对应 stateDecodePayload。
// 区别在于这里的帧是自描述的定长+变长二元组，不需要按协议猜测边界。
//
// Decoder 从不阻塞：Feed 在字节不够时直接返回，状态留在原地等待下一个
// chunk。一旦遇到 CorruptHeader/BodyTooLarge 就永久进入 poisoned 状态，
// 之后的每次 Feed 都立即返回同一个错误——调用方应将传输视为不可恢复。
type Decoder struct {
	buf   *JoinBuffer
	state decodeState
	hdr   Header

	onMessage func(*Message)

	// known 非 nil 时 启用"未知类型丢弃"模式：不在表中的 type 会被
	// 记录警告并丢弃 body 字节 不会回调 onMessage
	known map[Type]bool

	poisoned error
}

// NewDecoder 创建一个 Decoder 每个组装完成的 Message 通过 onMessage 回调投递
//
// known 为 nil 时 decoder 对任何类型都不做过滤，交由更上层 (worker
// supervisor) 决定如何处理未知类型。
func NewDecoder(onMessage func(*Message), known map[Type]bool) *Decoder {
	return &Decoder{
		buf:       NewJoinBuffer(),
		onMessage: onMessage,
		known:     known,
	}
}

// Feed 喂入任意大小的字节块 组装出的每条 Message 都会回调 onMessage
//
// 返回值非 nil 即代表 transport 已不可恢复 (CorruptHeader/BodyTooLarge)
func (d *Decoder) Feed(chunk []byte) error {
	if d.poisoned != nil {
		return d.poisoned
	}
	d.buf.Extend(chunk)

	for {
		if d.state == stateWantHeader {
			if d.buf.Len() < HeaderLen {
				return nil
			}
			raw, _ := d.buf.PopLeft(HeaderLen)
			hdr, err := Decode(raw, 0)
			if err != nil {
				d.poisoned = err
				return err
			}
			d.hdr = hdr
			d.state = stateWantBody
		}

		if d.buf.Len() < int(d.hdr.Length) {
			return nil
		}
		body, _ := d.buf.PopLeft(int(d.hdr.Length))
		hdr := d.hdr
		d.state = stateWantHeader

		if d.known != nil && !d.known[Type(hdr.Type)] {
			logger.Warnf("msg: dropping %d bytes for unknown type %d (sid=%d)", len(body), hdr.Type, hdr.Sid)
			continue
		}

		d.onMessage(FromRaw(hdr, body))
	}
}
