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
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cloudwego/seaopt/internal/opts"
	"github.com/cloudwego/seaopt/internal/target"
)

const (
	_MinIterations = 16
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithMaxIterations sets the number of worklist pops after which Optimize
// gives up with an IterationLimitError.
//
// Set this option to "0" disables this limit, which means running until no
// rewrite applies any more.
//
// The default value of this option is "100000".
func WithMaxIterations(n int) Option {
	if n != 0 && n < _MinIterations {
		panic(fmt.Sprintf("seaopt: invalid iteration limit: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxIterations = n }
	}
}

// WithVerify checks every graph invariant after each rewrite and panics on
// the first violation. This is slow and meant for tests.
func WithVerify(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithTarget selects the code generator the graph is optimized for, which
// decides the addressing unit, the pointer width and whether branches may be
// turned into selects.
//
// The default is the machine Optimize is running on.
func WithTarget(name string) Option {
	if tgt, ok := target.Lookup(name); !ok {
		panic(fmt.Sprintf("seaopt: unknown target: %s", name))
	} else {
		return func(o *opts.Options) { o.Target = tgt }
	}
}

// WithLogger sets where the optimizer reports what it does. Rewrites are
// logged at the debug level.
func WithLogger(log *logrus.Entry) Option {
	if log == nil {
		panic("seaopt: nil logger")
	} else {
		return func(o *opts.Options) { o.Logger = log }
	}
}

// SetMaxIterations sets the default iteration limit for all graphs from now
// on.
//
// This value can also be configured with the `SEAOPT_MAX_ITERATIONS`
// environment variable.
//
// Returns the old opts.MaxIterations value.
func SetMaxIterations(n int) int {
	n, opts.MaxIterations = opts.MaxIterations, n
	return n
}
