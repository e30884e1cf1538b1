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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// bodyState 标记 Message 持有的 body 表示处于哪种状态
//
// 保留 "首次访问才解码 首次修改才重编码" 的惰性行为：转发一条消息（既不
// 读字段也不改字段）完全不触碰 bson 编解码器 是零拷贝的快路径。
type bodyState uint8

const (
	// stateRawOnly 只有原始字节 尚未解码
	stateRawOnly bodyState = iota

	// stateDocOnly 只有解码后的文档 原始字节已过期（发生过修改）
	stateDocOnly

	// stateBothValid 原始字节与文档都是最新的
	stateBothValid
)

// Message 把一个 Header 与其 (可能惰性解码的) 文档体配对
//
// body 是 key/value 文档 在线上用 bson 编码：bson.D 保留写入顺序，值类型
// 覆盖 int64/double/string/[]byte/bool/nil/嵌套文档/有序列表。
type Message struct {
	Header Header

	raw   []byte
	doc   bson.D
	state bodyState
}

// FromRaw 用原始字节构造一个 Message 解码被推迟到首次访问字段
//
// length==0 的 header 对应空文档 这是一个合法结果而非解码错误，因此直接
// 标记为 both-valid 不走惰性路径。
func FromRaw(h Header, raw []byte) *Message {
	if len(raw) == 0 {
		return &Message{Header: h, doc: bson.D{}, state: stateBothValid}
	}
	return &Message{Header: h, raw: raw, state: stateRawOnly}
}

// FromDoc 用已经构造好的文档创建一个 Message 再编码被推迟到首次 Bytes()
func FromDoc(h Header, doc bson.D) *Message {
	return &Message{Header: h, doc: doc, state: stateDocOnly}
}

// Doc 返回解码后的文档 如有必要触发一次 bson.Unmarshal
func (m *Message) Doc() (bson.D, error) {
	if m.state == stateRawOnly {
		var doc bson.D
		if err := bson.Unmarshal(m.raw, &doc); err != nil {
			return nil, errors.Wrap(err, "msg: decode body failed")
		}
		m.doc = doc
		m.state = stateBothValid
	}
	return m.doc, nil
}

// Bytes 返回编码后的原始字节 如有必要触发一次 bson.Marshal
func (m *Message) Bytes() ([]byte, error) {
	if m.state == stateDocOnly {
		raw, err := bson.Marshal(m.doc)
		if err != nil {
			return nil, errors.Wrap(err, "msg: encode body failed")
		}
		m.raw = raw
		m.state = stateBothValid
	}
	return m.raw, nil
}

// Get 读取文档中的一个字段 触发解码
func (m *Message) Get(key string) (any, bool, error) {
	doc, err := m.Doc()
	if err != nil {
		return nil, false, err
	}
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true, nil
		}
	}
	return nil, false, nil
}

// Set 写入文档中的一个字段 原始字节随之失效 直到下次 Bytes() 才重编码
func (m *Message) Set(key string, value any) error {
	doc, err := m.Doc()
	if err != nil {
		return err
	}

	for i, e := range doc {
		if e.Key == key {
			doc[i].Value = value
			m.doc = doc
			m.state = stateDocOnly
			return nil
		}
	}
	m.doc = append(doc, bson.E{Key: key, Value: value})
	m.state = stateDocOnly
	return nil
}

// AsReplyTo 把 m 标记为对 req 的回复：复制 req 的 sid 并置位 SCLOSE，
// 实现"对某条 stream-scoped 请求的终态回复复用其 sid 并置位 SCLOSE"这一
// 约定。
func (m *Message) AsReplyTo(req *Message) *Message {
	m.Header.Sid = req.Header.Sid
	m.Header.Flags |= FlagSClose
	return m
}

// String 返回一个便于日志/诊断阅读的摘要 不会因为格式化而触发解码失败时 panic
func (m *Message) String() string {
	name := typeName(m.Header.Type)
	doc, err := m.Doc()
	if err != nil {
		return fmt.Sprintf("Message{type=%s sid=%d flags=%#x <undecodable body>}", name, m.Header.Sid, m.Header.Flags)
	}
	return fmt.Sprintf("Message{type=%s sid=%d flags=%#x body=%v}", name, m.Header.Sid, m.Header.Flags, doc)
}

// GoString is the verbose counterpart to String: it names every header
// field individually and spells out each body entry as key=value, the
// shape the drive command's transcript printer uses so a reader can see
// a cell's whole exchange field by field without cross-referencing the
// wire header layout.
func (m *Message) GoString() string {
	name := typeName(m.Header.Type)
	doc, err := m.Doc()
	if err != nil {
		return fmt.Sprintf("msg.Message{Type: %s, Sid: %d, Flags: %#x, Body: <undecodable: %v>}",
			name, m.Header.Sid, m.Header.Flags, err)
	}
	fields := make([]string, 0, len(doc))
	for _, e := range doc {
		fields = append(fields, fmt.Sprintf("%s=%#v", e.Key, e.Value))
	}
	return fmt.Sprintf("msg.Message{Type: %s, Sid: %d, Flags: %#x, Body: {%s}}",
		name, m.Header.Sid, m.Header.Flags, strings.Join(fields, ", "))
}
