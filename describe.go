package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/view"
)

func newDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <path> [description]",
		Short: "Show or change a file's description",
		Long: `Without a description argument, print the file's current description.
With one, replace it. --clear removes it. --dry-run shows the change without
saving it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runDescribe,
	}

	cmd.Flags().Bool("clear", false, "remove the description")
	cmd.Flags().Bool("dry-run", false, "show the change without saving")

	return cmd
}

// describeResult is the JSON output of describe.
type describeResult struct {
	Path        string   `json:"path"`
	Form        string   `json:"form"`
	Description string   `json:"description"`
	Changed     []string `json:"changed,omitempty"`
	Saved       bool     `json:"saved"`
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	clearDesc, _ := cmd.Flags().GetBool("clear")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if clearDesc && len(args) > 1 {
		return errors.New("--clear cannot be combined with a description")
	}

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	e, err := s.FS.Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	v, ok := view.For(e).(*view.DescribedFile)
	if !ok {
		return fmt.Errorf("%s has no description (%s does not support one here): %w",
			e.FullPath(), s.Provider.Name(), entity.ErrUnsupportedField)
	}

	var text *string

	switch {
	case clearDesc:
		empty := ""
		text = &empty
	case len(args) > 1:
		text = &args[1]
	}

	res, err := describe(cmd.Context(), s.FS, v, text, dryRun, cc.Logger)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, res)
	}

	switch {
	case text == nil:
		fmt.Fprintln(cc.Out, res.Description)
	case len(res.Changed) == 0:
		cc.Statusf("No change to %s\n", res.Path)
	case dryRun:
		cc.Statusf("Would change %s of %s to %q\n", strings.Join(res.Changed, ", "), res.Path, res.Description)
	default:
		cc.Statusf("Updated %s of %s\n", strings.Join(res.Changed, ", "), res.Path)
	}

	return nil
}

// describe stages text (when non-nil) in an edit session on v and saves it
// through u. A dry run reports the change and undoes it. A failed save is
// undone so the in-memory entry matches the server again.
func describe(ctx context.Context, u view.Updater, v *view.DescribedFile, text *string, dryRun bool, logger *slog.Logger) (*describeResult, error) {
	res := &describeResult{Path: v.Entry().FullPath(), Form: v.FormTemplate()}

	if text == nil {
		res.Description = v.Description()
		return res, nil
	}

	v.BeginChanging()

	if err := v.SetDescription(*text); err != nil {
		v.UndoChanges()
		return nil, fmt.Errorf("%s: %w", res.Path, err)
	}

	res.Changed = v.ChangedFields()
	res.Description = v.Description()

	if dryRun {
		v.UndoChanges()
		return res, nil
	}

	saved, err := view.Save(ctx, u, v)
	if err != nil {
		logger.Warn("save failed, undoing", slog.String("path", res.Path), slog.String("error", err.Error()))
		v.UndoChanges()

		return nil, err
	}

	res.Saved = len(res.Changed) > 0

	if f, ok := entity.AsFile(saved); ok {
		res.Description, _ = f.Field(entity.FieldDescription)
	}

	return res, nil
}
