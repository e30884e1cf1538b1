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

package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acleone/sageserver/msg"
)

func TestSendQueueFIFOOrder(t *testing.T) {
	q := NewSendQueue()
	q.Push(msg.NewStdout(1, []byte("a")))
	q.Push(msg.NewStdout(1, []byte("b")))
	q.Push(msg.NewStdout(1, []byte("c")))

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		m, ok := q.Pop(ctx)
		require.True(t, ok)
		v, _, err := m.Get("bytes")
		require.NoError(t, err)
		assert.Equal(t, []byte(want), v)
	}
}

func TestSendQueuePushFrontJumpsQueue(t *testing.T) {
	q := NewSendQueue()
	q.Push(msg.NewStdout(1, []byte("normal")))
	q.PushFront(msg.New(msg.TypeShutdown, msg.Doc{}))

	ctx := context.Background()
	m, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeShutdown), m.Header.Type)
}

func TestSendQueuePopBlocksUntilPush(t *testing.T) {
	q := NewSendQueue()

	type result struct {
		m  *msg.Message
		ok bool
	}
	done := make(chan result, 1)
	go func() {
		m, ok := q.Pop(context.Background())
		done <- result{m, ok}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(msg.NewStdout(1, []byte("x")))

	select {
	case r := <-done:
		assert.True(t, r.ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestSendQueuePopContextCancel(t *testing.T) {
	q := NewSendQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after context cancel")
	}
}

func TestSendQueueCloseWakesPop(t *testing.T) {
	q := NewSendQueue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(context.Background())
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

func TestSendQueueCloseDrainsExisting(t *testing.T) {
	q := NewSendQueue()
	q.Push(msg.NewStdout(1, []byte("queued before close")))
	q.Close()

	m, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeStdout), m.Header.Type)

	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestSendQueuePushAfterCloseIsNoop(t *testing.T) {
	q := NewSendQueue()
	q.Close()
	q.Push(msg.NewStdout(1, []byte("x")))
	assert.Equal(t, 0, q.Len())
}

func TestSendQueueTryPop(t *testing.T) {
	q := NewSendQueue()
	_, ok := q.TryPop()
	assert.False(t, ok)

	q.Push(msg.NewStdout(1, []byte("x")))
	m, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeStdout), m.Header.Type)
}
