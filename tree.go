package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/walk"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "List a folder recursively",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTree,
	}

	cmd.Flags().IntP("depth", "L", 0, "descend at most this many levels (0 = unlimited)")

	return cmd
}

type treeJSONItem struct {
	Depth int `json:"depth"`
	entryJSON
}

func runTree(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	depth, _ := cmd.Flags().GetInt("depth")

	root := "/"
	if len(args) > 0 {
		root = args[0]
	}

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	items, err := walk.Collect(cmd.Context(), s.FS, root, walk.Options{
		Parallelism: cc.Cfg.Walk.ParallelListings,
		MaxDepth:    depth,
		Logger:      cc.Logger,
	})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]treeJSONItem, 0, len(items))
		for _, it := range items {
			out = append(out, treeJSONItem{Depth: it.Depth, entryJSON: toEntryJSON(it.Entry)})
		}

		return printJSON(cc.Out, out)
	}

	printTree(cc, root, items)

	return nil
}

func printTree(cc *CLIContext, root string, items []walk.Item) {
	fmt.Fprintln(cc.Out, root)

	dirs, files := 0, 0

	for _, it := range items {
		name := it.Entry.Name()
		if it.Entry.IsDir() {
			name += "/"
			dirs++
		} else {
			files++
		}

		fmt.Fprintf(cc.Out, "%s%s\n", strings.Repeat("  ", it.Depth), name)
	}

	cc.Statusf("\n%d folders, %d files\n", dirs, files)
}
