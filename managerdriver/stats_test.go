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
	"testing"
	"time"

	"github.com/acleone/sageserver/msg"
)

func TestStatsMethodsAreNoOpWithoutStorage(t *testing.T) {
	var s *Stats
	// nil *Stats and NewStats(nil) must both be safe to call: most
	// callers don't check whether metricstorage is enabled before
	// recording, per Config.Enabled=false returning a nil *Storage.
	s.CellExecuted("w1")
	s.MessageSent("w1")
	s.MessageReceived("w1", msg.TypeDone)
	s.InterruptLatency("w1", 10*time.Millisecond)

	s2 := NewStats(nil)
	s2.CellExecuted("w1")
	s2.MessageSent("w1")
	s2.MessageReceived("w1", msg.TypeDone)
	s2.InterruptLatency("w1", 10*time.Millisecond)
}
