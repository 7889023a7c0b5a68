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

package opts

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	_DefaultMaxIterations = 100000 // cutoff at 100k worklist pops
)

var (
	MaxIterations = parseOrDefault("SEAOPT_MAX_ITERATIONS", _DefaultMaxIterations, 16)
	Verify        = parseBool("SEAOPT_VERIFY", false)
	LogLevel      = parseLevel("SEAOPT_LOG_LEVEL", logrus.WarnLevel)
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("seaopt: invalid value for " + key)
	} else if ret := int(val); ret != 0 && ret <= min {
		panic("seaopt: value too small for " + key)
	} else {
		return ret
	}
}

func parseBool(key string, def bool) bool {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseBool(env); err != nil {
		panic("seaopt: invalid value for " + key)
	} else {
		return val
	}
}

func parseLevel(key string, def logrus.Level) logrus.Level {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := logrus.ParseLevel(env); err != nil {
		panic("seaopt: invalid value for " + key)
	} else {
		return val
	}
}
