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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acleone/sageserver/execenv"
	"github.com/acleone/sageserver/internal/sigs"
	"github.com/acleone/sageserver/logger"
	"github.com/acleone/sageserver/worker"
)

// inboundFd/outboundFd 是固定的 child fd map：worker 子进程从 fd3 读取
// 入站消息 向 fd4 写出站消息；fd0/1/2 留给常规 stdin/stdout/stderr
// (stdout/stderr 由 manager 侧按行转入日志 见 managerdriver)。
const (
	inboundFd  = 3
	outboundFd = 4
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Internal re-exec entrypoint: run as the worker side of one manager/worker pair",
	Long: "Not intended to be invoked directly. managerdriver.Spawn re-execs\n" +
		"this binary with \"worker\" as its sole argument and fd3/fd4 wired to\n" +
		"a pair of os.Pipe()s.",
	Run: func(cmd *cobra.Command, args []string) {
		in := os.NewFile(inboundFd, "worker-in")
		out := os.NewFile(outboundFd, "worker-out")
		if in == nil || out == nil {
			fmt.Fprintln(os.Stderr, "worker: fd 3/4 not present; must be spawned via managerdriver.Spawn")
			os.Exit(1)
		}

		env := execenv.NewEnv(nil, execenv.NewShellExecutor())
		sup := worker.NewSupervisor(env)
		worker.NewPipeFor(sup, in, out)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-sigs.Terminate()
			cancel()
		}()

		if err := sup.Run(ctx); err != nil {
			logger.Errorf("worker: supervisor exited with error: %v", err)
			os.Exit(1)
		}
	},
	Example: "# re-exec'd internally: /proc/self/exe worker",
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
