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

// Queue is the minimal interface Stream needs from a send queue. It is
// satisfied by *transport.SendQueue without msg importing transport (which
// itself imports msg).
type Queue interface {
	Push(*Message)
}

// Stream pairs a stream id with the queue its replies get pushed onto, so
// a handler can reply without separately threading a raw sid and a raw
// *transport.SendQueue through every call site.
type Stream struct {
	sid   uint16
	queue Queue
	open  bool
}

// NewStream creates a Stream bound to sid and queue, open for sending.
func NewStream(sid uint16, queue Queue) *Stream {
	return &Stream{sid: sid, queue: queue, open: true}
}

// Sid returns the stream's id.
func (s *Stream) Sid() uint16 {
	return s.sid
}

// IsOpen reports whether Close has not yet been called on this stream.
func (s *Stream) IsOpen() bool {
	return s.open
}

// Send pushes m onto the stream without closing it: m.Header.Sid is
// overwritten to match the stream regardless of what the caller set. A
// no-op once the stream is closed.
func (s *Stream) Send(m *Message) {
	if !s.open {
		return
	}
	m.Header.Sid = s.sid
	s.queue.Push(m)
}

// Close pushes a final, SCLOSE-flagged m and marks the stream closed. A
// no-op once already closed.
func (s *Stream) Close(m *Message) {
	if !s.open {
		return
	}
	s.open = false
	m.Header.Sid = s.sid
	m.Header.Flags |= FlagSClose
	s.queue.Push(m)
}
