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
    `strings`
)

// Node is a vertex of the sea-of-nodes graph. Input 0 is the control or
// effect predecessor when the kind has one, Nil otherwise.
type Node struct {
    Kind  Kind
    Type  DataType
    Ins   []ID
    Users []Use
    Extra Extra
}

// Extra is the kind-specific payload of a node.
type Extra interface {
    fmt.Stringer
    clone() Extra
}

// BranchInfo describes the successors of a branch. Succ[0] is the default
// edge, Succ[i] is taken when the condition equals Keys[i - 1]. A two-way
// branch therefore goes to Succ[1] when the condition equals the falsey
// value Keys[0] and to Succ[0] otherwise.
type BranchInfo struct {
    Succ []ID
    Keys []uint64
}

type ProjInfo struct {
    Index int
}

type CompareInfo struct {
    CmpType DataType
}

// MemberInfo is an element offset from a base pointer, in units of the
// minimum addressable size of the target.
type MemberInfo struct {
    Offset int64
}

type IntInfo struct {
    Words []uint64
}

type MemInfo struct {
    Align uint32
}

type CallInfo struct {
    Name string
}

func (self *BranchInfo) clone() Extra {
    return &BranchInfo {
        Succ: append([]ID(nil), self.Succ...),
        Keys: append([]uint64(nil), self.Keys...),
    }
}

func (self *ProjInfo)    clone() Extra { v := *self; return &v }
func (self *CompareInfo) clone() Extra { v := *self; return &v }
func (self *MemberInfo)  clone() Extra { v := *self; return &v }
func (self *MemInfo)     clone() Extra { v := *self; return &v }
func (self *CallInfo)    clone() Extra { v := *self; return &v }

func (self *IntInfo) clone() Extra {
    return &IntInfo { Words: append([]uint64(nil), self.Words...) }
}

func (self *BranchInfo) String() string {
    ret := make([]string, 0, len(self.Succ))

    /* default edge first, then the keyed edges */
    for i, s := range self.Succ {
        if i == 0 {
            ret = append(ret, fmt.Sprintf("_ => %s", s))
        } else if i - 1 < len(self.Keys) {
            ret = append(ret, fmt.Sprintf("%d => %s", self.Keys[i - 1], s))
        } else {
            ret = append(ret, fmt.Sprintf("? => %s", s))
        }
    }

    /* join them together */
    return fmt.Sprintf("[%s]", strings.Join(ret, ", "))
}

func (self *ProjInfo)    String() string { return fmt.Sprintf("#%d", self.Index) }
func (self *CompareInfo) String() string { return self.CmpType.String() }
func (self *MemberInfo)  String() string { return fmt.Sprintf("+%d", self.Offset) }
func (self *MemInfo)     String() string { return fmt.Sprintf("align %d", self.Align) }
func (self *CallInfo)    String() string { return self.Name }

func (self *IntInfo) String() string {
    if len(self.Words) == 1 {
        return fmt.Sprintf("%d", self.Words[0])
    }

    /* multi-word constants, most significant word first */
    ret := make([]string, len(self.Words))
    for i, w := range self.Words {
        ret[len(self.Words) - 1 - i] = fmt.Sprintf("%016x", w)
    }
    return "0x" + strings.Join(ret, "_")
}

// Value returns the constant if it fits a single word.
func (self *IntInfo) Value() (uint64, bool) {
    if len(self.Words) != 1 {
        return 0, false
    } else {
        return self.Words[0], true
    }
}

func (self *Node) String() string {
    ins := make([]string, 0, len(self.Ins))
    for _, v := range self.Ins {
        ins = append(ins, v.String())
    }

    /* build the textual form */
    buf := new(strings.Builder)
    buf.WriteString(self.Kind.String())

    /* data type suffix for value producing nodes */
    if self.Type.Kind != TypeVoid && self.Type.Kind != TypeControl {
        buf.WriteByte('.')
        buf.WriteString(self.Type.String())
    }

    /* inputs */
    if len(ins) != 0 {
        buf.WriteByte(' ')
        buf.WriteString(strings.Join(ins, ", "))
    }

    /* kind specific payload */
    if self.Extra != nil {
        buf.WriteByte(' ')
        buf.WriteString(self.Extra.String())
    }
    return buf.String()
}
