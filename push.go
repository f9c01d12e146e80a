package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/watch"
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <local-folder> [remote-folder]",
		Short: "Upload the files of a local folder",
		Long: `Upload every file in a local folder into a remote folder (default "/").
Files that already exist remotely are skipped. With --watch, keep running and
upload new or changed files once they have been quiet for --debounce. Stop
with Ctrl-C.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPush,
	}

	cmd.Flags().Bool("watch", false, "keep watching the folder for new files")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a changed file is uploaded")

	return cmd
}

type pushSummary struct {
	uploaded, skipped, failed int
}

func (s *pushSummary) add(r watch.Result) {
	switch {
	case r.Skipped:
		s.skipped++
	case r.Err != nil:
		s.failed++
	default:
		s.uploaded++
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	localDir := args[0]

	remoteDir := "/"
	if len(args) > 1 {
		remoteDir = args[1]
	}

	watchMode, _ := cmd.Flags().GetBool("watch")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	info, err := os.Stat(localDir)
	if err != nil {
		return fmt.Errorf("stating local folder: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", localDir)
	}

	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}

	if s.Account.ReadOnly {
		return fmt.Errorf("account %q: %w", s.Account.Name, filesystem.ErrReadOnly)
	}

	var summary pushSummary

	pusher := watch.NewPusher(s.FS, localDir, remoteDir, watch.Options{
		Debounce: debounce,
		Logger:   cc.Logger,
		OnResult: func(r watch.Result) {
			summary.add(r)

			switch {
			case r.Skipped:
				cc.Statusf("skip   %s (exists)\n", r.Local)
			case r.Err != nil:
				cc.Statusf("fail   %s: %s\n", r.Local, describeError(r.Err))
			default:
				cc.Statusf("upload %s -> %s\n", r.Local, r.File.FullPath())
			}
		},
	})

	if _, err := pusher.PushExisting(ctx); err != nil {
		return err
	}

	if watchMode {
		lockPath, err := watchLockPath(s.Account.Name, localDir)
		if err != nil {
			return err
		}

		release, err := acquireLock(lockPath)
		if err != nil {
			return err
		}
		defer release()

		cc.Statusf("Watching %s, press Ctrl-C to stop\n", localDir)

		if err := pusher.Watch(ctx); err != nil {
			return err
		}
	}

	cc.Logger.Info("push finished",
		slog.Int("uploaded", summary.uploaded),
		slog.Int("skipped", summary.skipped),
		slog.Int("failed", summary.failed),
	)
	cc.Statusf("%d uploaded, %d skipped, %d failed\n", summary.uploaded, summary.skipped, summary.failed)

	if summary.failed > 0 {
		return fmt.Errorf("%d files failed to upload", summary.failed)
	}

	return nil
}
