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

// Package genomics contains definitions related to genomic data.
package genomics

import "fmt"

// AllMappedReads defines a Region that matches all mapped reads.
var AllMappedReads = Region{ReferenceID: -1}

// Region defines a region of genomic interest.
type Region struct {
	// ReferenceID specifies the reference to match.  If it is negative, any
	// reference matches the region.
	ReferenceID int32
	// Start and End specify the range (in base pairs) relative to the
	// reference.  If End is zero, it is treated as though it was set to the
	// last possible read position.
	Start, End uint32
}

func (region Region) String() string {
	return fmt.Sprintf("[reference:%d, start:%d, end:%d]", region.ReferenceID, region.Start, region.End)
}
