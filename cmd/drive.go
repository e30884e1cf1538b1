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
	"time"

	"github.com/spf13/cobra"

	"github.com/acleone/sageserver/internal/rescue"
	"github.com/acleone/sageserver/internal/sigs"
	"github.com/acleone/sageserver/managerdriver"
	"github.com/acleone/sageserver/msg"
)

var driveSource string

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Spawn one worker and run a scripted EXEC_CELL exchange, printing the transcript",
	Run: func(cmd *cobra.Command, args []string) {
		self, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "drive: resolve own executable path: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg := managerdriver.Config{Path: self, Args: []string{"worker"}}
		w, err := managerdriver.Spawn(ctx, cfg, managerdriver.NewStats(nil))
		if err != nil {
			fmt.Fprintf(os.Stderr, "drive: spawn worker: %v\n", err)
			os.Exit(1)
		}

		go func() {
			<-sigs.Terminate()
			managerdriver.RunShutdownHooks()
			os.Exit(1)
		}()

		sub := w.Subscribe(32)
		defer w.Unsubscribe(sub)

		runDone := make(chan error, 1)
		go func() {
			defer rescue.HandleCrash()
			runDone <- w.Run(ctx)
		}()

		const sid = 1
		w.Send(msg.NewExecCell(sid, driveSource, 1, false))

		for {
			v, ok := sub.PopTimeout(10 * time.Second)
			if !ok {
				fmt.Fprintln(os.Stderr, "drive: timed out waiting for worker reply")
				break
			}
			m, ok := v.(*msg.Message)
			if !ok {
				continue
			}
			fmt.Println(m.GoString())
			if msg.Type(m.Header.Type) == msg.TypeDone && m.Header.Sid == sid {
				break
			}
		}

		if err := w.Shutdown(2 * time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "drive: worker shutdown: %v\n", err)
		}
		<-runDone
	},
	Example: `# sageworker drive --source 'print(1 + 1)'`,
}

func init() {
	driveCmd.Flags().StringVar(&driveSource, "source", "print(1 + 1)", "Cell source to execute against the spawned worker")
	rootCmd.AddCommand(driveCmd)
}
