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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/seaopt/internal/sched"
)

// A Stats records statistics about the optimizer, accumulated over every
// graph optimized by this process.
type Stats struct {
	Worklist WorklistStats
	Order    OrderStats
}

// A WorklistStats records how much work the rewrite driver did.
type WorklistStats struct {
	Visited  int
	Rewrites int
}

// An OrderStats records how often the block order had to be recomputed
// after a control-flow rewrite.
type OrderStats struct {
	Rebuilds int
}

// GetStats returns statistics of the optimizer.
func GetStats() Stats {
	return Stats{
		Worklist: WorklistStats{
			Visited:  int(atomic.LoadUint64(&sched.VisitCount)),
			Rewrites: int(atomic.LoadUint64(&sched.RewriteCount)),
		},
		Order: OrderStats{
			Rebuilds: int(atomic.LoadUint64(&sched.RebuildCount)),
		},
	}
}
