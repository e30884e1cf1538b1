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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFromRawEmptyBodyIsValidEmptyDoc(t *testing.T) {
	m := FromRaw(Header{Type: uint16(TypeDone)}, nil)
	assert.Equal(t, stateBothValid, m.state)

	doc, err := m.Doc()
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, doc)
}

func TestMessageLazyDecodeRoundTrip(t *testing.T) {
	orig := NewExecCell(5, "print(1)", 1, false)
	raw, err := orig.Bytes()
	require.NoError(t, err)

	m := FromRaw(orig.Header, raw)
	assert.Equal(t, stateRawOnly, m.state)

	src, ok, err := m.Get("source")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "print(1)", src)
	assert.Equal(t, stateBothValid, m.state)
}

func TestMessageGetMissingKey(t *testing.T) {
	m := NewStdout(1, []byte("hi"))
	_, ok, err := m.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageSetOverwritesExisting(t *testing.T) {
	m := NewStdout(1, []byte("hi"))
	require.NoError(t, m.Set("bytes", []byte("bye")))

	v, ok, err := m.Get("bytes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("bye"), v)
}

func TestMessageSetAppendsNewKey(t *testing.T) {
	m := NewStdout(1, []byte("hi"))
	require.NoError(t, m.Set("extra", int64(7)))

	v, ok, err := m.Get("extra")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
}

func TestMessageAsReplyTo(t *testing.T) {
	req := NewIsComputing(42)
	reply := NewYes(0).AsReplyTo(req)

	assert.Equal(t, uint16(42), reply.Header.Sid)
	assert.True(t, reply.Header.Flags.Has(FlagSClose))
}

func TestMessageStringDoesNotPanicOnUndecodableBody(t *testing.T) {
	m := FromRaw(Header{Type: uint16(TypeStdout)}, []byte{0xFF, 0xFF, 0xFF})
	assert.NotPanics(t, func() {
		_ = m.String()
	})
}

func TestMessageStringIncludesTypeName(t *testing.T) {
	m := NewStdout(3, []byte("hi"))
	assert.Contains(t, m.String(), "Stdout")
	assert.Contains(t, m.String(), "sid=3")
}
