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

package execenv

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/acleone/sageserver/internal/bufbytes"
	"github.com/acleone/sageserver/internal/splitio"
)

// maxTracebackSize 上限字节数 超出截断 (traceback 格式化
// 需要一个容量上限 避免失控代码产生的海量输出撑爆消息体)
const maxTracebackSize = 64 << 10

// classifyError 把 executor 返回的 error 拆成 Except 消息需要的字段
//
// *exec.ExitError 携带 stderr (已经被我们自己的 stderr adapter 转发过
// 一份 这里只需要退出状态) 我们把它当作 etype="ExitError"；其余错误
// (启动失败等) 归类为 "ExecutorError"。Go 没有 Python 式的 SyntaxError
// 区分，所以 syntax 恒为 false —— 语法錯誤和运行时错误都表现为非零退出码。
func classifyError(err error) (stack []string, etype, value string, syntax bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		etype = "ExitError"
		value = fmt.Sprintf("exit status %d", exitErr.ExitCode())
	} else {
		etype = "ExecutorError"
		value = err.Error()
	}

	acc := bufbytes.New(maxTracebackSize)
	acc.Write([]byte(err.Error()))
	r := splitio.NewReader(acc.Clone())
	for {
		line, eof := r.ReadLine()
		if eof {
			break
		}
		stack = append(stack, strings.TrimRight(string(line), "\r\n"))
	}
	return stack, etype, value, false
}

func formatPlainTraceback(stack []string, etype, value string) string {
	var b strings.Builder
	for _, line := range stack {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s: %s\n", etype, value)
	return b.String()
}
