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

package main

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cloudwego/seaopt"
	"github.com/cloudwego/seaopt/internal/irfile"
	"github.com/cloudwego/seaopt/internal/target"
)

type runOptions struct {
	maxIterations int
	verify        bool
	format        string
	stats         bool
}

func newRunCommand(g *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [OPTIONS] FIXTURE",
		Short: "Optimize a fixture and print the resulting graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.OutOrStdout(), g, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.maxIterations, "max-iterations", 0, "Give up after this many worklist pops (0 means the default)")
	flags.BoolVar(&opts.verify, "verify", false, "Verify the graph after every rewrite")
	flags.StringVarP(&opts.format, "format", "f", "text", "Output format (text, toml, spew)")
	flags.BoolVar(&opts.stats, "stats", false, "Print what the optimizer did")
	return cmd
}

// optimizerOptions maps the command line onto seaopt options.
func optimizerOptions(g *globalOptions, maxIterations int, verify bool) ([]seaopt.Option, error) {
	if _, ok := target.Lookup(g.target); !ok {
		return nil, errors.Errorf("unknown target %q", g.target)
	}
	ret := []seaopt.Option{
		seaopt.WithTarget(g.target),
		seaopt.WithVerify(verify),
		seaopt.WithLogger(g.entry()),
	}
	if maxIterations != 0 {
		ret = append(ret, seaopt.WithMaxIterations(maxIterations))
	}
	return ret, nil
}

func runRun(out io.Writer, g *globalOptions, opts runOptions, path string) error {
	if opts.maxIterations < 0 {
		return errors.Errorf("invalid iteration limit %d", opts.maxIterations)
	}
	options, err := optimizerOptions(g, opts.maxIterations, opts.verify)
	if err != nil {
		return err
	}

	/* load and optimize */
	graph, err := seaopt.LoadGraph(path)
	if err != nil {
		return err
	}
	var st seaopt.Stats
	if err = seaopt.OptimizeWithStats(graph, &st, options...); err != nil {
		return errors.Wrapf(err, "optimizing %s", path)
	}

	/* print the result */
	switch opts.format {
	case "text":
		fmt.Fprintln(out, graph.String())
	case "spew":
		spew.Fdump(out, graph)
	case "toml":
		buf, err := irfile.Encode(graph)
		if err != nil {
			return errors.Wrap(err, "encoding graph")
		}
		out.Write(buf)
	default:
		return errors.Errorf("unknown output format %q", opts.format)
	}

	if opts.stats {
		fmt.Fprintf(out, "# visited=%d rewrites=%d subsumed=%d rebuilds=%d\n",
			st.Visited,
			st.Rewrites,
			st.Subsumed,
			st.Rebuilds,
		)
	}
	return nil
}
