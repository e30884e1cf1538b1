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

// Worker->manager reply constructors, the counterpart of requests.go.

// NewStdout 构造一条 w->m 的 STDOUT 消息
func NewStdout(sid uint16, chunk []byte) *Message {
	return NewOnStream(TypeStdout, sid, 0, Doc{}.Set("bytes", chunk))
}

// NewStderr 构造一条 w->m 的 STDERR 消息
func NewStderr(sid uint16, chunk []byte) *Message {
	return NewOnStream(TypeStderr, sid, 0, Doc{}.Set("bytes", chunk))
}

// ExceptFields 是 EXCEPT 消息体的类型化镜像
type ExceptFields struct {
	Stderr string
	Stack  []string
	Etype  string
	Value  string
	Syntax bool
}

// NewExcept 构造一条 w->m 的 EXCEPT 消息 as-reply-to 由调用方完成
func NewExcept(sid uint16, f ExceptFields) *Message {
	doc := Doc{}.
		Set("stderr", f.Stderr).
		Set("stack", stringsToAny(f.Stack)).
		Set("etype", f.Etype).
		Set("value", f.Value).
		Set("syntax", f.Syntax)
	return NewOnStream(TypeExcept, sid, 0, doc)
}

// NewNeedStdin 构造一条 w->m 的 NEED_STDIN 消息
func NewNeedStdin(sid uint16, nbytes int) *Message {
	return NewOnStream(TypeNeedStdin, sid, 0, Doc{}.Set("nbytes", int64(nbytes)))
}

// NewDone 构造一条 w->m 的 DONE 消息 已置 SCLOSE；as-reply-to 由调用方完成
func NewDone(sid uint16) *Message {
	return NewOnStream(TypeDone, sid, FlagSClose, Doc{})
}

// NewYes/NewNo 构造 built-in 布尔回复
func NewYes(sid uint16) *Message {
	return NewOnStream(TypeYes, sid, FlagSClose, Doc{})
}

func NewNo(sid uint16) *Message {
	return NewOnStream(TypeNo, sid, FlagSClose, Doc{})
}

// NewCompletions 构造一条 w->m 的 COMPLETIONS 回复
func NewCompletions(sid uint16, text, format string, completions []string) *Message {
	doc := Doc{}.
		Set("text", text).
		Set("format", format).
		Set("completions", stringsToAny(completions))
	return NewOnStream(TypeCompletions, sid, FlagSClose, doc)
}

// NewDocReply 构造一条 w->m 的 DOC 回复
func NewDocReply(sid uint16, object, format string, found bool, doc string) *Message {
	d := Doc{}.
		Set("object", object).
		Set("format", format).
		Set("obj_found", found).
		Set("doc", doc)
	return NewOnStream(TypeDoc, sid, FlagSClose, d)
}

// NewSourceReply 构造一条 w->m 的 SOURCE 回复
func NewSourceReply(sid uint16, object, format string, found bool, source string) *Message {
	d := Doc{}.
		Set("object", object).
		Set("format", format).
		Set("obj_found", found).
		Set("source", source)
	return NewOnStream(TypeSource, sid, FlagSClose, d)
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
