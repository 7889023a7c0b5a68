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

package ir

import (
    `fmt`
    `strconv`
)

// ID is a stable index into the node arena of a Graph. Nil means "no node".
type ID uint32

const (
    Nil ID = 0
)

func (self ID) String() string {
    if self == Nil {
        return "_"
    } else {
        return fmt.Sprintf("%%%d", uint32(self))
    }
}

type Kind uint8

const (
    KindDead Kind = iota
    KindStart
    KindRegion
    KindBranch
    KindProj
    KindPhi
    KindIntConst
    KindSelect
    KindCmpEq
    KindCmpNe
    KindCmpSlt
    KindCmpSle
    KindCmpUlt
    KindCmpUle
    KindAdd
    KindLoad
    KindStore
    KindMemcpy
    KindMemberAccess
    KindCall
    KindReturn
    _KindMax
)

var _KindNames = [...]string {
    KindDead         : "dead",
    KindStart        : "start",
    KindRegion       : "region",
    KindBranch       : "branch",
    KindProj         : "proj",
    KindPhi          : "phi",
    KindIntConst     : "const",
    KindSelect       : "select",
    KindCmpEq        : "cmp.eq",
    KindCmpNe        : "cmp.ne",
    KindCmpSlt       : "cmp.slt",
    KindCmpSle       : "cmp.sle",
    KindCmpUlt       : "cmp.ult",
    KindCmpUle       : "cmp.ule",
    KindAdd          : "add",
    KindLoad         : "load",
    KindStore        : "store",
    KindMemcpy       : "memcpy",
    KindMemberAccess : "member",
    KindCall         : "call",
    KindReturn       : "ret",
}

func (self Kind) String() string {
    if self >= _KindMax {
        return fmt.Sprintf("kind(%d)", uint8(self))
    } else {
        return _KindNames[self]
    }
}

// IsCompare reports whether the kind produces a boolean comparison result.
func (self Kind) IsCompare() bool {
    return self >= KindCmpEq && self <= KindCmpUle
}

// IsBlockHeader reports whether nodes of this kind start a basic block.
func (self Kind) IsBlockHeader() bool {
    return self == KindRegion || self == KindStart
}

// HasEffect reports whether nodes of this kind sit on the control/effect
// chain of a block and must not be reordered or speculated.
func (self Kind) HasEffect() bool {
    switch self {
        case KindStore, KindMemcpy, KindCall : return true
        default                              : return false
    }
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
    for i, v := range _KindNames {
        if v == s && Kind(i) != KindDead {
            return Kind(i), true
        }
    }
    return KindDead, false
}

type TypeKind uint8

const (
    TypeVoid TypeKind = iota
    TypeInt
    TypeFloat
    TypePtr
    TypeControl
)

// DataType is the value type of a node, a scalar kind plus its width in bits
// (the width is unused for pointers and control).
type DataType struct {
    Kind TypeKind
    Bits uint16
}

var (
    Void    = DataType { Kind: TypeVoid }
    Control = DataType { Kind: TypeControl }
    Ptr     = DataType { Kind: TypePtr }
    Bool    = DataType { Kind: TypeInt, Bits: 1 }
    I8      = DataType { Kind: TypeInt, Bits: 8 }
    I16     = DataType { Kind: TypeInt, Bits: 16 }
    I32     = DataType { Kind: TypeInt, Bits: 32 }
    I64     = DataType { Kind: TypeInt, Bits: 64 }
    F32     = DataType { Kind: TypeFloat, Bits: 32 }
    F64     = DataType { Kind: TypeFloat, Bits: 64 }
)

func Int(bits uint16) DataType {
    return DataType { Kind: TypeInt, Bits: bits }
}

// BitsIn returns the number of bits a value of this type occupies in memory.
func (self DataType) BitsIn(ptrBits int) int {
    switch self.Kind {
        case TypeInt, TypeFloat : return int(self.Bits)
        case TypePtr            : return ptrBits
        default                 : return 0
    }
}

// Mask keeps the low bits of v that a value of this type can hold.
func (self DataType) Mask(v uint64, ptrBits int) uint64 {
    if n := self.BitsIn(ptrBits); n <= 0 || n >= 64 {
        return v
    } else {
        return v & (1 << uint(n) - 1)
    }
}

func (self DataType) IsBool() bool {
    return self.Kind == TypeInt && self.Bits == 1
}

func (self DataType) String() string {
    switch self.Kind {
        case TypeVoid    : return "void"
        case TypeInt     : return fmt.Sprintf("i%d", self.Bits)
        case TypeFloat   : return fmt.Sprintf("f%d", self.Bits)
        case TypePtr     : return "ptr"
        case TypeControl : return "ctrl"
        default          : return fmt.Sprintf("type(%d)", self.Kind)
    }
}

// ParseType is the inverse of DataType.String.
func ParseType(s string) (DataType, bool) {
    switch s {
        case "void" : return Void, true
        case "ptr"  : return Ptr, true
        case "ctrl" : return Control, true
    }
    if len(s) < 2 {
        return Void, false
    }
    bits, err := strconv.ParseUint(s[1:], 10, 16)
    if err != nil || bits == 0 {
        return Void, false
    }
    switch s[0] {
        case 'i' : return Int(uint16(bits)), true
        case 'f' : return DataType { Kind: TypeFloat, Bits: uint16(bits) }, true
        default  : return Void, false
    }
}

// Use is the reverse of an edge: node N reads its producer at input Slot.
type Use struct {
    N    ID
    Slot int
}
