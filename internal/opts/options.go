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
	"github.com/sirupsen/logrus"

	"github.com/cloudwego/seaopt/internal/target"
)

type Options struct {
	MaxIterations int
	Verify        bool
	Target        target.Info
	Logger        *logrus.Entry
}

// CanContinue reports whether the driver may pop another node after n pops.
func (self *Options) CanContinue(n int) bool {
	return self.MaxIterations == 0 || n < self.MaxIterations
}

func GetDefaultOptions() Options {
	return Options{
		MaxIterations: MaxIterations,
		Verify:        Verify,
		Target:        target.Host(),
		Logger:        DefaultLogger(),
	}
}

// DefaultLogger returns a logger at the level named by SEAOPT_LOG_LEVEL.
func DefaultLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(LogLevel)
	return logrus.NewEntry(l).WithField("component", "seaopt")
}
