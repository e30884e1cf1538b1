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

// Type 是稳定数字消息类型注册表
type Type uint16

// 协议定义的全部消息类型
const (
	TypeStdin Type = 0
	TypeStdout Type = 1
	TypeStderr Type = 2

	TypeExcept Type = 10

	TypeNeedStdin Type = 90

	TypeDone Type = 99
	TypeNo   Type = 100
	TypeYes  Type = 101

	TypeInterrupt Type = 110
	TypeShutdown  Type = 111
	TypeExecCell  Type = 120
	TypeIsComputing Type = 130

	TypeGetCompletions Type = 140
	TypeCompletions    Type = 141
	TypeGetDoc         Type = 142
	TypeDoc            Type = 143
	TypeGetSource      Type = 144
	TypeSource         Type = 145
)

// typeNames 给每个已知类型一个稳定的名字
//
// 原始实现里这张表由 msg_generator 在构建期生成 (明确把代码
// 生成器排除在运行时契约之外)；这里手写一次性替代，效果等价。
var typeNames = map[Type]string{
	TypeStdin:          "Stdin",
	TypeStdout:         "Stdout",
	TypeStderr:         "Stderr",
	TypeExcept:         "Except",
	TypeNeedStdin:      "NeedStdin",
	TypeDone:           "Done",
	TypeNo:             "No",
	TypeYes:            "Yes",
	TypeInterrupt:      "Interrupt",
	TypeShutdown:       "Shutdown",
	TypeExecCell:       "ExecCell",
	TypeIsComputing:    "IsComputing",
	TypeGetCompletions: "GetCompletions",
	TypeCompletions:    "Completions",
	TypeGetDoc:         "GetDoc",
	TypeDoc:            "Doc",
	TypeGetSource:      "GetSource",
	TypeSource:         "Source",
}

// String 实现 fmt.Stringer 未知类型显示为 "Unknown"
func (t Type) String() string {
	return typeName(uint16(t))
}

func typeName(t uint16) string {
	if name, ok := typeNames[Type(t)]; ok {
		return name
	}
	return "Unknown"
}

// New 构造一个新的 fire-and-forget (sid=0) Message
func New(t Type, doc Doc) *Message {
	return FromDoc(Header{Type: uint16(t)}, doc.raw())
}

// NewOnStream 构造一条绑定到某个 stream 的 Message
func NewOnStream(t Type, sid uint16, flags Flag, doc Doc) *Message {
	return FromDoc(Header{Type: uint16(t), Sid: sid, Flags: flags}, doc.raw())
}
