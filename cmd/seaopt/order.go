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
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudwego/seaopt/internal/ir"
	"github.com/cloudwego/seaopt/internal/irfile"
	"github.com/cloudwego/seaopt/internal/order"
)

func newOrderCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order FIXTURE",
		Short: "Print the block postorder and the dominator tree of a fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd.OutOrStdout(), args[0])
		},
	}
}

func runOrder(out io.Writer, path string) error {
	g, err := irfile.Load(path)
	if err != nil {
		return err
	}

	/* block order */
	po := order.Compute(g)
	fmt.Fprintln(out, po.String())

	/* dominator tree, one block per line */
	dom := order.Dominators(g)
	if dom.Root != ir.Nil {
		printDomTree(out, g, dom, dom.Root, 0)
	}
	return nil
}

func printDomTree(out io.Writer, g *ir.Graph, dom *order.DomTree, bb ir.ID, depth int) {
	fmt.Fprintf(out, "%s%s %s\n", strings.Repeat("  ", depth), g.Kind(bb), bb)
	for _, c := range dom.Children(bb) {
		printDomTree(out, g, dom, c, depth+1)
	}
}
