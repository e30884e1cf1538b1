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

	"github.com/acleone/sageserver/common"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		typ    uint16
		sid    uint16
		length uint32
		flags  Flag
	}{
		{name: "Zero", typ: 0, sid: 0, length: 0, flags: 0},
		{name: "Stdout", typ: uint16(TypeStdout), sid: 7, length: 128, flags: 0},
		{name: "ExecCellOpen", typ: uint16(TypeExecCell), sid: 1, length: 4096, flags: FlagSOpen},
		{name: "DoneClose", typ: uint16(TypeDone), sid: 65535, length: 0, flags: FlagSClose},
		{name: "BothFlags", typ: 42, sid: 1, length: 1, flags: FlagSOpen | FlagSClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.typ, tt.sid, tt.length, tt.flags)
			require.NoError(t, err)
			assert.Len(t, b, HeaderLen)

			hdr, err := Decode(b, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, hdr.Type)
			assert.Equal(t, tt.sid, hdr.Sid)
			assert.Equal(t, tt.length, hdr.Length)
			assert.Equal(t, tt.flags, hdr.Flags)
		})
	}
}

func TestEncodeBodyTooLarge(t *testing.T) {
	_, err := Encode(0, 0, common.MaxBodySize+1, 0)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeShortHeader(t *testing.T) {
	b, err := Encode(uint16(TypeStdin), 3, 10, 0)
	require.NoError(t, err)

	_, err = Decode(b[:HeaderLen-1], 0)
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestDecodeOffset(t *testing.T) {
	b, err := Encode(uint16(TypeYes), 9, 0, FlagSClose)
	require.NoError(t, err)

	padded := append([]byte{0xFF, 0xFF, 0xFF}, b...)
	hdr, err := Decode(padded, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(TypeYes), hdr.Type)
	assert.Equal(t, uint16(9), hdr.Sid)
	assert.Equal(t, FlagSClose, hdr.Flags)
}

// TestDecodeSingleBitFlipDetected 验证 checksum 覆盖的前 csumBytes 字节
// (type+sid+length) 中任意单比特翻转都会被捕获为 ErrCorruptHeader
func TestDecodeSingleBitFlipDetected(t *testing.T) {
	b, err := Encode(uint16(TypeExecCell), 12, 300, FlagSOpen)
	require.NoError(t, err)

	for byteIdx := 0; byteIdx < csumBytes; byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), b...)
			corrupt[byteIdx] ^= 1 << uint(bit)

			_, err := Decode(corrupt, 0)
			assert.ErrorIsf(t, err, ErrCorruptHeader, "byte %d bit %d not detected", byteIdx, bit)
		}
	}
}

func TestFlagHas(t *testing.T) {
	f := FlagSOpen | FlagSClose
	assert.True(t, f.Has(FlagSOpen))
	assert.True(t, f.Has(FlagSClose))
	assert.False(t, Flag(0).Has(FlagSOpen))
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = Encode(uint16(TypeStdout), 1, 128, 0)
	}
}

func BenchmarkDecode(b *testing.B) {
	buf, _ := Encode(uint16(TypeStdout), 1, 128, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(buf, 0)
	}
}
