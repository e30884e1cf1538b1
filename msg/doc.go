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

import "go.mongodb.org/mongo-driver/bson"

// Doc is a small fluent builder over bson.D, used by callers constructing
// outbound message bodies for the well-known message types without
// importing the bson package directly at every call site.
type Doc bson.D

// Set appends or overwrites a key and returns the receiver for chaining
func (d Doc) Set(key string, value any) Doc {
	for i, e := range d {
		if e.Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: value})
}

func (d Doc) raw() bson.D {
	return bson.D(d)
}
