// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binary

import (
	"bytes"
	"testing"
)

func TestExpectBytes(t *testing.T) {
	testCases := []struct {
		want  []byte
		input []byte
		match bool
	}{
		{[]byte("BAI\x01"), []byte("BAI\x01"), true},
		{[]byte("BAI\x01"), []byte("BAI\x01EXTRA"), true},
		{[]byte("BAI\x01"), []byte("BAI\x02"), false},
		{[]byte("BAI\x01"), []byte("BAI"), false},
		{[]byte("BAI\x01"), []byte(""), false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.input), func(t *testing.T) {
			err := ExpectBytes(bytes.NewReader(tc.input), tc.want)
			if err != nil && tc.match {
				t.Fatalf("ExpectBytes returned unexpected error: %v", err)
			} else if err == nil && !tc.match {
				t.Fatalf("ExpectBytes accepted mismatched input %v", tc.input)
			}
		})
	}
}

func TestRead(t *testing.T) {
	input := []byte{0x2a, 0x00, 0x00, 0x00, 0x10, 0x27}
	r := bytes.NewReader(input)

	var first int32
	if err := Read(r, &first); err != nil {
		t.Fatalf("Read returned unexpected error: %v", err)
	}
	if got, want := first, int32(42); got != want {
		t.Errorf("Wrong int32 value: got %d, want %d", got, want)
	}

	var second uint16
	if err := Read(r, &second); err != nil {
		t.Fatalf("Read returned unexpected error: %v", err)
	}
	if got, want := second, uint16(10000); got != want {
		t.Errorf("Wrong uint16 value: got %d, want %d", got, want)
	}

	var third byte
	if err := Read(r, &third); err == nil {
		t.Error("Read past the end of input should fail")
	}
}
