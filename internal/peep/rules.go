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

package peep

import (
    `github.com/cloudwego/seaopt/internal/ir`
)

var idealTab = [...]func(*Session, ir.ID) ir.ID {
    ir.KindPhi    : (*Session).IdealPhi,
    ir.KindBranch : (*Session).IdealBranch,
    ir.KindLoad   : (*Session).IdealLoad,
    ir.KindStore  : (*Session).IdealStore,
    ir.KindMemcpy : (*Session).IdealMemcpy,
}

var identityTab = [...]func(*Session, ir.ID) ir.ID {
    ir.KindLoad : (*Session).IdentityLoad,
}

// Ideal tries to rewrite n into a simpler form. It returns Nil when nothing
// matched, n itself when n was changed in place, or a new node that should
// replace n.
func (self *Session) Ideal(n ir.ID) ir.ID {
    if k := self.g.Kind(n); int(k) < len(idealTab) && idealTab[k] != nil {
        return idealTab[k](self, n)
    } else {
        return ir.Nil
    }
}

// Identity returns the node n is equivalent to, n itself by default.
func (self *Session) Identity(n ir.ID) ir.ID {
    if k := self.g.Kind(n); int(k) < len(identityTab) && identityTab[k] != nil {
        return identityTab[k](self, n)
    } else {
        return n
    }
}
