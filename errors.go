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

package seaopt

import (
    `github.com/cloudwego/seaopt/internal/ir`
    `github.com/cloudwego/seaopt/internal/sched`
)

// IterationLimitError occures when the optimizer gives up before reaching a
// fixed point. The graph is still well-formed, just not fully optimized.
type IterationLimitError = sched.IterationLimitError

// InvariantError occures when a graph breaks one of the structural rules of
// the IR, such as an edge without a matching use record.
type InvariantError = ir.InvariantError
