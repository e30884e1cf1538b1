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

package managerdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acleone/sageserver/msg"
)

// loopbackConfig spawns a plain /bin/sh process that echoes fd3 straight
// to fd4, standing in for a real worker binary so the pipe plumbing
// (fd map, decoder wiring, pubsub fan-out) can be exercised without a
// compiled "sageworker worker" binary.
func loopbackConfig() Config {
	return Config{Path: "/bin/sh", Args: []string{"-c", "cat <&3 >&4"}}
}

func TestSpawnRoundTripsMessageThroughLoopbackWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := Spawn(ctx, loopbackConfig(), NewStats(nil))
	require.NoError(t, err)

	sub := w.Subscribe(4)
	defer w.Unsubscribe(sub)

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(ctx) }()

	w.Send(msg.NewIsComputing(7))

	got, ok := sub.PopTimeout(2 * time.Second)
	require.True(t, ok)
	reply, ok := got.(*msg.Message)
	require.True(t, ok)
	assert.Equal(t, uint16(msg.TypeIsComputing), reply.Header.Type)
	assert.Equal(t, uint16(7), reply.Header.Sid)

	require.NoError(t, w.Kill())
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after worker was killed")
	}
}

func TestSpawnRegistersAndClearsShutdownHook(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w, err := Spawn(ctx, loopbackConfig(), NewStats(nil))
	require.NoError(t, err)

	_, ok := shutdownHooks.Load(w.ID)
	assert.True(t, ok)

	require.NoError(t, w.Kill())
	<-w.Done()

	_, ok = shutdownHooks.Load(w.ID)
	assert.False(t, ok)
}

func TestPoolSpawnTracksAndForgetsWorkers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := NewPool(loopbackConfig(), NewStats(nil))
	w, err := pool.SpawnWorker(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())

	_, ok := pool.Get(w.ID)
	assert.True(t, ok)

	require.NoError(t, w.Kill())
	<-w.Done()

	assert.Eventually(t, func() bool { return pool.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPoolShutdownKillsWorkersThatIgnoreShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool := NewPool(loopbackConfig(), NewStats(nil))
	_, err := pool.SpawnWorker(ctx)
	require.NoError(t, err)

	// a plain "cat" loopback never reacts to a SHUTDOWN message, so
	// Shutdown must fall through to Kill once the timeout elapses.
	start := time.Now()
	pool.Shutdown(200 * time.Millisecond)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, 0, pool.Len())
}

func TestRunShutdownHooksInvokesEveryRegisteredHook(t *testing.T) {
	called := make(chan string, 2)
	registerShutdownHook("a", func() { called <- "a" })
	registerShutdownHook("b", func() { called <- "b" })
	defer removeShutdownHook("a")
	defer removeShutdownHook("b")

	RunShutdownHooks()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-called:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for shutdown hooks to run")
		}
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}
