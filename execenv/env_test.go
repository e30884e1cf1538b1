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
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

type fakeExecutor struct {
	run func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error
}

func (f *fakeExecutor) Run(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
	return f.run(ctx, source, stdin, stdout, stderr)
}

func popAll(t *testing.T, q *transport.SendQueue) []*msg.Message {
	t.Helper()
	var out []*msg.Message
	for {
		m, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

func TestExecCellSuccessEmitsDone(t *testing.T) {
	q := transport.NewSendQueue()
	exec := &fakeExecutor{run: func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
		_, _ = stdout.Write([]byte("ok"))
		return nil
	}}
	env := NewEnv(q, exec)

	req := msg.NewExecCell(5, "print('ok')", 1, false)
	env.ExecCell(req)

	got := popAll(t, q)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, uint16(msg.TypeDone), last.Header.Type)
	assert.Equal(t, uint16(5), last.Header.Sid)
	assert.True(t, last.Header.Flags.Has(msg.FlagSClose))
}

func TestExecCellFailureWithExceptMsgEmitsExcept(t *testing.T) {
	q := transport.NewSendQueue()
	exec := &fakeExecutor{run: func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
		return errors.New("boom")
	}}
	env := NewEnv(q, exec)

	req := msg.NewExecCell(5, "raise", 1, false)
	env.ExecCell(req)

	got := popAll(t, q)
	require.Len(t, got, 2)
	assert.Equal(t, uint16(msg.TypeExcept), got[0].Header.Type)
	assert.Equal(t, uint16(msg.TypeDone), got[1].Header.Type)

	value, _, err := got[0].Get("value")
	require.NoError(t, err)
	assert.Equal(t, "boom", value)
}

func TestExecCellFailureWithoutExceptMsgEmitsStderr(t *testing.T) {
	q := transport.NewSendQueue()
	exec := &fakeExecutor{run: func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
		return errors.New("boom")
	}}
	env := NewEnv(q, exec)

	req := msg.NewExecCell(5, "raise", 1, false)
	req.Set("except_msg", false)
	env.ExecCell(req)

	got := popAll(t, q)
	require.Len(t, got, 2)
	assert.Equal(t, uint16(msg.TypeStderr), got[0].Header.Type)
	assert.Equal(t, uint16(msg.TypeDone), got[1].Header.Type)
}

func TestExecCellInstallsActiveInputDuringRun(t *testing.T) {
	q := transport.NewSendQueue()
	started := make(chan struct{})
	proceed := make(chan struct{})
	exec := &fakeExecutor{run: func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
		close(started)
		<-proceed
		return nil
	}}
	env := NewEnv(q, exec)

	done := make(chan struct{})
	go func() {
		env.ExecCell(msg.NewExecCell(9, "block", 1, false))
		close(done)
	}()

	<-started
	env.mu.Lock()
	assert.NotNil(t, env.activeInput)
	env.mu.Unlock()
	close(proceed)
	<-done
	env.mu.Lock()
	assert.Nil(t, env.activeInput)
	env.mu.Unlock()
}

func TestInterruptCancelsExecutionContext(t *testing.T) {
	q := transport.NewSendQueue()
	exec := &fakeExecutor{run: func(ctx context.Context, source string, stdin io.Reader, stdout, stderr io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	env := NewEnv(q, exec)

	done := make(chan struct{})
	go func() {
		env.ExecCell(msg.NewExecCell(1, "block", 1, false))
		close(done)
	}()

	for {
		env.mu.Lock()
		ready := env.cancelActive != nil
		env.mu.Unlock()
		if ready {
			break
		}
		time.Sleep(time.Millisecond)
	}
	env.Interrupt()
	<-done
}

func TestHandleGetCompletionsRepliesNotFound(t *testing.T) {
	q := transport.NewSendQueue()
	env := NewEnv(q, &fakeExecutor{})

	req := msg.NewGetCompletions(3, "foo.", "")
	env.ReceiveHandlerTable()[msg.TypeGetCompletions](req)

	reply, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeCompletions), reply.Header.Type)
	assert.Equal(t, uint16(3), reply.Header.Sid)
}
