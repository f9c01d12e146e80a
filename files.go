package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}

	cmd.Flags().BoolP("parents", "p", false, "create missing parent folders and accept an existing folder")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file> [remote-folder]",
		Short: "Upload a file into a folder",
		Long: `Upload a local file into a remote folder (default "/"). An existing
remote file of the same name is never overwritten.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}

	cmd.Flags().String("name", "", "remote file name (defaults to the local name)")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Folder deletion removes all contents, so
folders require --recursive (-r).`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <new-parent-folder>",
		Short: "Move a file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	p := "/"
	if len(args) > 0 {
		p = args[0]
	}

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	entries, err := s.FS.ListDirectory(cmd.Context(), p)
	if err != nil {
		return err
	}

	sortEntries(entries)

	if cc.Flags.JSON {
		out := make([]entryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, toEntryJSON(e))
		}

		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryRow(e))
	}

	printTable(cc.Out, []string{"MODE", "NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

// sortEntries orders folders first, then by name.
func sortEntries(entries []entity.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}

		return entries[i].Name() < entries[j].Name()
	})
}

func runStat(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	e, err := s.FS.Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return printEntry(cc, e)
}

func printEntry(cc *CLIContext, e entity.Entry) error {
	out := toEntryJSON(e)

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	fmt.Fprintf(cc.Out, "Path:      %s\n", out.Path)
	fmt.Fprintf(cc.Out, "Name:      %s\n", out.Name)
	fmt.Fprintf(cc.Out, "ID:        %s\n", out.ID)
	fmt.Fprintf(cc.Out, "Kind:      %s\n", out.Kind)
	fmt.Fprintf(cc.Out, "Read-only: %t\n", out.ReadOnly)

	if out.Size != nil {
		fmt.Fprintf(cc.Out, "Size:      %s (%d bytes)\n", formatSize(*out.Size), *out.Size)
	}

	fmt.Fprintf(cc.Out, "Created:   %s\n", formatTime(e.CreatedAt()))
	fmt.Fprintf(cc.Out, "Modified:  %s\n", formatTime(e.ModifiedAt()))

	if out.ETag != "" {
		fmt.Fprintf(cc.Out, "ETag:      %s\n", out.ETag)
	}

	if out.ContentType != "" {
		fmt.Fprintf(cc.Out, "Type:      %s\n", out.ContentType)
	}

	if f, ok := entity.AsFile(e); ok && f.HasField(entity.FieldDescription) {
		fmt.Fprintf(cc.Out, "Notes:     %s\n", out.Description)
	}

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	parents, _ := cmd.Flags().GetBool("parents")

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	p := filesystem.Clean(args[0])
	if filesystem.IsRoot(p) {
		return fmt.Errorf("cannot create the root folder")
	}

	if parents {
		return mkdirAll(cmd.Context(), cc, s.FS, p)
	}

	parent, name := filesystem.Split(p)

	d, err := s.FS.CreateDirectory(cmd.Context(), parent, name)
	if err != nil {
		return err
	}

	cc.Statusf("Created %s\n", d.FullPath())

	return nil
}

// mkdirAll creates p and any missing parents. Existing folders are
// accepted; an existing file in the way is an error.
func mkdirAll(ctx context.Context, cc *CLIContext, fs filesystem.FileSystem, p string) error {
	if filesystem.IsRoot(p) {
		return nil
	}

	parent, name := filesystem.Split(p)
	if err := mkdirAll(ctx, cc, fs, parent); err != nil {
		return err
	}

	_, err := fs.CreateDirectory(ctx, parent, name)
	if err == nil {
		cc.Statusf("Created %s\n", p)
		return nil
	}

	if !errors.Is(err, filesystem.ErrConflict) {
		return err
	}

	e, statErr := fs.Stat(ctx, p)
	if statErr != nil {
		return statErr
	}

	if !e.IsDir() {
		return fmt.Errorf("%s exists and is not a folder: %w", p, filesystem.ErrConflict)
	}

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	localPath := args[0]

	remoteDir := "/"
	if len(args) > 1 {
		remoteDir = args[1]
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	cc.Logger.Debug("put",
		slog.String("local_path", localPath),
		slog.String("remote_dir", remoteDir),
		slog.Int64("size", fi.Size()),
	)

	created, err := s.FS.CreateFile(cmd.Context(), remoteDir, name, f, fi.Size())
	if err != nil {
		return err
	}

	cc.Statusf("Uploaded %s (%s)\n", created.FullPath(), formatSize(created.Size()))

	if cc.Flags.JSON {
		return printJSON(cc.Out, toEntryJSON(created))
	}

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	recursive, _ := cmd.Flags().GetBool("recursive")

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	e, err := s.FS.Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if e.IsDir() && !recursive {
		return fmt.Errorf("%s is a folder, use -r to delete it with its contents", e.FullPath())
	}

	if err := s.FS.Delete(cmd.Context(), e.FullPath()); err != nil {
		return err
	}

	cc.Statusf("Deleted %s\n", e.FullPath())

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	moved, err := s.FS.Move(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	cc.Statusf("Moved %s to %s\n", filesystem.Clean(args[0]), moved.FullPath())

	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := openSession(cmd.Context(), cc)
	if err != nil {
		return err
	}

	renamed, err := s.FS.Rename(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	cc.Statusf("Renamed %s to %s\n", filesystem.Clean(args[0]), renamed.FullPath())

	return nil
}
