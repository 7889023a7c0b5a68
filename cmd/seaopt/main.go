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

// Command seaopt loads IR fixtures, optimizes them and shows the result.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	level  string
	target string
	logger *logrus.Logger
}

func (self *globalOptions) entry() *logrus.Entry {
	return logrus.NewEntry(self.logger).WithField("component", "seaopt")
}

func newRootCommand() *cobra.Command {
	g := &globalOptions{logger: logrus.New()}
	cmd := &cobra.Command{
		Use:           "seaopt",
		Short:         "Peephole optimizer for sea-of-nodes IR fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lv, err := logrus.ParseLevel(g.level)
			if err != nil {
				return err
			}
			g.logger.SetLevel(lv)
			g.logger.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.level, "log-level", "warn", "Logging level (debug, info, warn, error)")
	flags.StringVarP(&g.target, "target", "t", "host", "Target to optimize for (amd64, arm64, 386, host)")

	cmd.AddCommand(
		newRunCommand(g),
		newOrderCommand(g),
		newExecCommand(g),
	)
	return cmd
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		logrus.WithError(err).Error("seaopt failed")
		os.Exit(1)
	}
}
