/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package target

import (
	"fmt"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/klauspost/cpuid/v2"
)

// Info is what the optimizer needs to know about the code generator.
type Info struct {
	Name string

	// MinAddressable is the size in bits of the smallest addressable unit.
	MinAddressable int

	// PointerBits is the width of a pointer in bits.
	PointerBits int

	// HasSelect reports whether a conditional select can be lowered without
	// a branch (cmov, csel, ...).
	HasSelect bool
}

var (
	AMD64 = Info{Name: "amd64", MinAddressable: 8, PointerBits: 64, HasSelect: true}
	ARM64 = Info{Name: "arm64", MinAddressable: 8, PointerBits: 64, HasSelect: true}
	I386  = Info{Name: "386", MinAddressable: 8, PointerBits: 32, HasSelect: false}
)

// Host describes the machine the optimizer is running on.
func Host() Info {
	ret := Info{
		Name:           runtime.GOARCH,
		MinAddressable: 8,
		PointerBits:    int(unsafe.Sizeof(uintptr(0))) * 8,
	}

	/* x86 gained cmov with the P6, everything else we know of has a csel form */
	switch runtime.GOARCH {
	case "amd64", "386":
		ret.HasSelect = cpuid.CPU.Supports(cpuid.CMOV)
	default:
		ret.HasSelect = true
	}
	return ret
}

// Lookup returns a known target by name.
func Lookup(name string) (Info, bool) {
	switch name {
	case "amd64":
		return AMD64, true
	case "arm64":
		return ARM64, true
	case "386":
		return I386, true
	case "host":
		return Host(), true
	default:
		return Info{}, false
	}
}

// ScaleOffset converts an element offset into a bit offset.
func (self Info) ScaleOffset(off int64) int64 {
	return off * int64(self.MinAddressable)
}

func (self Info) String() string {
	return fmt.Sprintf("%s (ptr=%d, unit=%d, select=%s)",
		self.Name,
		self.PointerBits,
		self.MinAddressable,
		strconv.FormatBool(self.HasSelect),
	)
}
