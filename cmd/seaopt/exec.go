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
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cloudwego/seaopt"
	"github.com/cloudwego/seaopt/internal/emu"
	"github.com/cloudwego/seaopt/internal/target"
)

type execOptions struct {
	memory   string
	optimize bool
	maxSteps int
}

func newExecCommand(g *globalOptions) *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec [OPTIONS] FIXTURE [ARG...]",
		Short: "Interpret a fixture with the reference emulator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.OutOrStdout(), g, opts, args[0], args[1:])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.memory, "memory", "m", "", "Initial memory image, hex encoded")
	flags.BoolVarP(&opts.optimize, "optimize", "O", false, "Optimize the graph before running it")
	flags.IntVar(&opts.maxSteps, "max-steps", 0, "Abort after this many blocks (0 means the default)")
	return cmd
}

func parseArgs(args []string) ([]uint64, error) {
	ret := make([]uint64, len(args))
	for i, s := range args {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		ret[i] = v
	}
	return ret, nil
}

func runExec(out io.Writer, g *globalOptions, opts execOptions, path string, args []string) error {
	tgt, ok := target.Lookup(g.target)
	if !ok {
		return errors.Errorf("unknown target %q", g.target)
	}

	/* arguments and memory */
	vals, err := parseArgs(args)
	if err != nil {
		return err
	}
	mem, err := hex.DecodeString(opts.memory)
	if err != nil {
		return errors.Wrap(err, "invalid memory image")
	}

	/* load, optionally optimize */
	graph, err := seaopt.LoadGraph(path)
	if err != nil {
		return err
	}
	if opts.optimize {
		options, err := optimizerOptions(g, 0, false)
		if err != nil {
			return err
		}
		if err = seaopt.Optimize(graph, options...); err != nil {
			return errors.Wrapf(err, "optimizing %s", path)
		}
	}

	/* run it */
	e := emu.New(graph, tgt)
	if opts.maxSteps > 0 {
		e.MaxSteps = opts.maxSteps
	}
	res, err := e.Run(mem, vals...)
	if err != nil {
		return err
	}

	/* what the program did */
	for _, c := range res.Calls {
		fmt.Fprintf(out, "call   %s\n", c)
	}
	for i, v := range res.Values {
		fmt.Fprintf(out, "ret.%d  %#x\n", i, v)
	}
	if len(res.Memory) != 0 {
		fmt.Fprintf(out, "memory %s\n", hex.EncodeToString(res.Memory))
	}
	fmt.Fprintf(out, "steps  %d\n", res.Steps)
	return nil
}
