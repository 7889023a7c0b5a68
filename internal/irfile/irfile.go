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

package irfile

import (
    `fmt`
    `os`

    `github.com/pelletier/go-toml`
    `github.com/pkg/errors`

    `github.com/cloudwego/seaopt/internal/ir`
)

// File is the TOML form of a graph. Node IDs are arbitrary positive numbers,
// 0 stands for "no input".
type File struct {
    Name  string `toml:"name"`
    Nodes []Node `toml:"node"`
}

// Node is one [[node]] table. Only the payload fields of its op are read.
type Node struct {
    ID     int64   `toml:"id"`
    Op     string  `toml:"op"`
    Type   string  `toml:"type,omitempty"`
    Ins    []int64 `toml:"ins,omitempty"`
    Index  int64   `toml:"index,omitempty"`
    Succ   []int64 `toml:"succ,omitempty"`
    Keys   []int64 `toml:"keys,omitempty"`
    Cmp    string  `toml:"cmp,omitempty"`
    Offset int64   `toml:"offset,omitempty"`
    Value  int64   `toml:"value,omitempty"`
    Words  []int64 `toml:"words,omitempty"`
    Align  int64   `toml:"align,omitempty"`
    Callee string  `toml:"callee,omitempty"`
}

// FixtureError describes a node that cannot be turned into IR.
type FixtureError struct {
    Node   int64
    Reason string
}

func (self *FixtureError) Error() string {
    if self.Node == 0 {
        return "irfile: " + self.Reason
    } else {
        return fmt.Sprintf("irfile: node %d: %s", self.Node, self.Reason)
    }
}

func invalid(n int64, format string, args ...interface{}) error {
    return &FixtureError { Node: n, Reason: fmt.Sprintf(format, args...) }
}

// Load reads and decodes a fixture file.
func Load(path string) (*ir.Graph, error) {
    buf, err := os.ReadFile(path)
    if err != nil {
        return nil, errors.Wrapf(err, "irfile: cannot read %s", path)
    }
    g, err := Decode(buf)
    if err != nil {
        return nil, errors.Wrapf(err, "irfile: %s", path)
    }
    return g, nil
}

// Decode parses a fixture and builds the graph it describes. The graph is
// verified before it is returned.
func Decode(buf []byte) (*ir.Graph, error) {
    var f File
    if err := toml.Unmarshal(buf, &f); err != nil {
        return nil, errors.Wrap(err, "irfile: malformed TOML")
    }
    return f.Build()
}

var _ControlKinds = map[ir.Kind]bool {
    ir.KindStart  : true,
    ir.KindRegion : true,
    ir.KindBranch : true,
    ir.KindStore  : true,
    ir.KindMemcpy : true,
    ir.KindCall   : true,
    ir.KindReturn : true,
}

func (self *Node) dataType(k ir.Kind) (ir.DataType, error) {
    if self.Type != "" {
        if dt, ok := ir.ParseType(self.Type); !ok {
            return ir.Void, invalid(self.ID, "invalid type %q", self.Type)
        } else {
            return dt, nil
        }
    }

    /* fall back to the natural type of the op */
    switch {
        case _ControlKinds[k]         : return ir.Control, nil
        case k == ir.KindProj         : return ir.Control, nil
        case k.IsCompare()            : return ir.Bool, nil
        case k == ir.KindMemberAccess : return ir.Ptr, nil
        default                       : return ir.Void, invalid(self.ID, "%s needs a type", k)
    }
}

func (self *Node) extra(k ir.Kind) (ir.Extra, error) {
    switch k {
        case ir.KindProj         : return &ir.ProjInfo { Index: int(self.Index) }, nil
        case ir.KindMemberAccess : return &ir.MemberInfo { Offset: self.Offset }, nil
        case ir.KindLoad         : return &ir.MemInfo { Align: uint32(self.Align) }, nil
        case ir.KindStore        : return &ir.MemInfo { Align: uint32(self.Align) }, nil
        case ir.KindCall         : return &ir.CallInfo { Name: self.Callee }, nil
        case ir.KindIntConst     : return self.intInfo(), nil
        case ir.KindBranch       : return self.branchInfo()
        default                  : return nil, nil
    }
}

func (self *Node) intInfo() *ir.IntInfo {
    if len(self.Words) == 0 {
        return &ir.IntInfo { Words: []uint64 { uint64(self.Value) } }
    }
    ret := &ir.IntInfo { Words: make([]uint64, len(self.Words)) }
    for i, w := range self.Words {
        ret.Words[i] = uint64(w)
    }
    return ret
}

func (self *Node) branchInfo() (ir.Extra, error) {
    if len(self.Succ) == 0 {
        return nil, invalid(self.ID, "branch without successors")
    }
    if len(self.Keys) != len(self.Succ) - 1 {
        return nil, invalid(self.ID, "%d successors need %d keys, got %d", len(self.Succ), len(self.Succ) - 1, len(self.Keys))
    }
    ret := &ir.BranchInfo { Keys: make([]uint64, len(self.Keys)) }
    for i, k := range self.Keys {
        ret.Keys[i] = uint64(k)
    }
    return ret, nil
}

// Build turns the decoded file into a graph.
func (self *File) Build() (*ir.Graph, error) {
    g := ir.NewGraph(self.Name)
    ids := make(map[int64]ir.ID, len(self.Nodes))

    /* allocate every node first, inputs may refer forward */
    for i := range self.Nodes {
        p := &self.Nodes[i]
        if p.ID <= 0 {
            return nil, invalid(p.ID, "node IDs must be positive")
        }
        if _, dup := ids[p.ID]; dup {
            return nil, invalid(p.ID, "duplicated node ID")
        }

        /* op, type and payload */
        k, ok := ir.ParseKind(p.Op)
        if !ok {
            return nil, invalid(p.ID, "unknown op %q", p.Op)
        }
        dt, err := p.dataType(k)
        if err != nil {
            return nil, err
        }
        ex, err := p.extra(k)
        if err != nil {
            return nil, err
        }
        ids[p.ID] = g.Alloc(k, dt, ex)
    }

    /* resolve references */
    ref := func(n int64, v int64) (ir.ID, error) {
        if v == 0 {
            return ir.Nil, nil
        } else if id, ok := ids[v]; !ok {
            return ir.Nil, invalid(n, "reference to undefined node %d", v)
        } else {
            return id, nil
        }
    }

    /* wire the edges */
    for _, p := range self.Nodes {
        n := ids[p.ID]
        for _, v := range p.Ins {
            id, err := ref(p.ID, v)
            if err != nil {
                return nil, err
            }
            g.AddInput(n, id)
        }

        /* successors of branches */
        if g.Kind(n) == ir.KindBranch {
            bi := g.Branch(n)
            for _, v := range p.Succ {
                id, err := ref(p.ID, v)
                if err != nil {
                    return nil, err
                }
                bi.Succ = append(bi.Succ, id)
            }
        }
    }

    /* comparison types default to the type of the left operand */
    for _, p := range self.Nodes {
        n := ids[p.ID]
        if !g.Kind(n).IsCompare() {
            continue
        }
        if g.InputCount(n) != 3 || g.In(n, 1) == ir.Nil || g.In(n, 2) == ir.Nil {
            return nil, invalid(p.ID, "comparisons take [0, lhs, rhs] as inputs")
        }
        dt, ok := g.Type(g.In(n, 1)), true
        if p.Cmp != "" {
            if dt, ok = ir.ParseType(p.Cmp); !ok {
                return nil, invalid(p.ID, "invalid comparison type %q", p.Cmp)
            }
        }
        g.Node(n).Extra = &ir.CompareInfo { CmpType: dt }
    }

    /* the result must be a well-formed graph */
    if g.Start == ir.Nil {
        return nil, invalid(0, "graph %q has no start node", self.Name)
    }
    if err := g.Verify(); err != nil {
        return nil, errors.Wrap(err, "irfile: graph does not verify")
    }
    return g, nil
}

// Encode writes g back as a fixture.
func Encode(g *ir.Graph) ([]byte, error) {
    f := File { Name: g.Name }
    g.Live(func(n ir.ID) {
        f.Nodes = append(f.Nodes, encodeNode(g, n))
    })
    return toml.Marshal(f)
}

func encodeNode(g *ir.Graph, n ir.ID) Node {
    p := g.Node(n)
    ret := Node {
        ID   : int64(n),
        Op   : p.Kind.String(),
        Type : p.Type.String(),
    }

    /* inputs */
    for _, v := range p.Ins {
        ret.Ins = append(ret.Ins, int64(v))
    }

    /* payloads */
    switch ex := p.Extra.(type) {
        case *ir.ProjInfo    : ret.Index = int64(ex.Index)
        case *ir.MemberInfo  : ret.Offset = ex.Offset
        case *ir.MemInfo     : ret.Align = int64(ex.Align)
        case *ir.CallInfo    : ret.Callee = ex.Name
        case *ir.CompareInfo : ret.Cmp = ex.CmpType.String()
        case *ir.IntInfo     : encodeInt(&ret, ex)
        case *ir.BranchInfo  : encodeBranch(&ret, ex)
    }
    return ret
}

func encodeInt(p *Node, ex *ir.IntInfo) {
    if len(ex.Words) == 1 {
        p.Value = int64(ex.Words[0])
        return
    }
    for _, w := range ex.Words {
        p.Words = append(p.Words, int64(w))
    }
}

func encodeBranch(p *Node, ex *ir.BranchInfo) {
    for _, v := range ex.Succ {
        p.Succ = append(p.Succ, int64(v))
    }
    for _, k := range ex.Keys {
        p.Keys = append(p.Keys, int64(k))
    }
}
