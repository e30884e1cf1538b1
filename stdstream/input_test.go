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

package stdstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acleone/sageserver/msg"
	"github.com/acleone/sageserver/transport"
)

func TestInputReadZeroReturnsEmptyWithoutTraffic(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)

	b, err := in.Read(0)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Equal(t, 0, q.Len())
}

func TestInputReadSatisfiedWithoutWaiting(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)
	in.FeedStdin([]byte("hello world"))

	b, err := in.Read(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
	assert.False(t, in.Waiting())
}

func TestInputReadBlocksAndEmitsNeedStdinOnce(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)

	done := make(chan []byte, 1)
	go func() {
		b, err := in.Read(5)
		require.NoError(t, err)
		done <- b
	}()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, in.Waiting())

	m, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeNeedStdin), m.Header.Type)

	in.FeedStdin([]byte("hello"))

	select {
	case b := <-done:
		assert.Equal(t, []byte("hello"), b)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after FeedStdin")
	}

	_, ok = q.TryPop()
	assert.False(t, ok, "only one NeedStdin should have been emitted")
}

func TestInputReadReemitsNeedStdinAcrossInsufficientChunks(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)

	done := make(chan []byte, 1)
	go func() {
		b, err := in.Read(100)
		require.NoError(t, err)
		done <- b
	}()

	time.Sleep(20 * time.Millisecond)
	m, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeNeedStdin), m.Header.Type)

	// First chunk is short of the requested 100 bytes: Read must loop
	// and emit a second NeedStdin rather than block forever.
	in.FeedStdin(make([]byte, 40))

	m, ok = q.Pop(context.Background())
	require.True(t, ok, "a second NeedStdin should have been emitted for the still-unsatisfied read")
	assert.Equal(t, uint16(msg.TypeNeedStdin), m.Header.Type)

	in.FeedStdin(make([]byte, 60))

	select {
	case b := <-done:
		assert.Len(t, b, 100)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after second FeedStdin satisfied the request")
	}
}

func TestInputReadEOFReturnsWhateverBuffered(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)
	in.FeedStdin([]byte("ab"))
	in.FeedStdin(nil) // EOF

	b, err := in.Read(10)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), b)
}

func TestInputReadNegativeDrainsUntilEOF(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)
	in.FeedStdin([]byte("ab"))
	in.FeedStdin([]byte("cd"))
	in.FeedStdin(nil)

	b, err := in.Read(-1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), b)
}

func TestInputReadInterruptedReturnsError(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, false, q)

	done := make(chan error, 1)
	go func() {
		_, err := in.Read(5)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	in.FeedInterrupt()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInterrupted)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after FeedInterrupt")
	}
	assert.False(t, in.Waiting())
}

func TestInputEchoStdinEchoesConsumedBytes(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, true, q)
	in.FeedStdin([]byte("hi"))

	_, err := in.Read(2)
	require.NoError(t, err)

	// Read emits NeedStdin before it takes the already-queued input event
	need, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeNeedStdin), need.Header.Type)

	m, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeStdin), m.Header.Type)
	v, _, err := m.Get("bytes")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), v)
}

func TestInputEchoStdinEmitsEmptyStdinOnEOF(t *testing.T) {
	q := transport.NewSendQueue()
	in := NewInput(1, true, q)
	in.FeedStdin([]byte("hi"))
	in.FeedStdin(nil)

	_, err := in.Read(-1)
	require.NoError(t, err)

	// Read(-1) emits a NeedStdin before each wait on the input queue; the
	// echoes follow them
	echo, ok := q.Pop(context.Background())
	for ok && echo.Header.Type == uint16(msg.TypeNeedStdin) {
		echo, ok = q.Pop(context.Background())
	}
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeStdin), echo.Header.Type)
	v, _, _ := echo.Get("bytes")
	assert.Equal(t, []byte("hi"), v)

	eofEcho, ok := q.Pop(context.Background())
	require.True(t, ok)
	v2, _, _ := eofEcho.Get("bytes")
	assert.Empty(t, v2)
}
