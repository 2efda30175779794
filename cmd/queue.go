package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/config"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the local upload queue",
	Long: `Manage the local upload queue.

Files are checked against the accepted types (PDF, XLSX, XLS, CSV, JPEG, PNG,
ZIP) when they are added; unsupported files never enter the queue. The queue
is kept in UPLOAD_QUEUE_PATH until 'invoicectl upload' sends it.`,
	Example: `  # Queue two files and a folder
  invoicectl queue add january.pdf february.xlsx
  invoicectl queue add --dir ./scans

  # Review and edit the queue
  invoicectl queue list
  invoicectl queue remove 3f1c2a9e-...
  invoicectl queue clear`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add [files...]",
	Short: "Add files to the upload queue",
	RunE:  runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued files",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove [task-id...]",
	Short: "Remove queued files by task id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQueueRemove,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every queued file",
	Args:  cobra.NoArgs,
	RunE:  runQueueClear,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueRemoveCmd, queueClearCmd)

	queueAddCmd.Flags().String("dir", "", "Add every file in this folder (recursively)")
}

// openPipeline opens the persistent queue and builds a pipeline on it. The
// caller must close the returned store.
func openPipeline(cfg *config.Config, uploader upload.Uploader, opts ...upload.Option) (*upload.Pipeline, *upload.BoltStore, error) {
	store, err := upload.NewBoltStore(cfg.QueuePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open upload queue %s: %w", cfg.QueuePath, err)
	}

	policy := upload.ResetAlways
	if cfg.KeepQueueOnUploadFailure {
		policy = upload.ResetOnResolution
	}

	opts = append([]upload.Option{upload.WithStore(store), upload.WithResetPolicy(policy)}, opts...)
	p, err := upload.NewPipeline(uploader, opts...)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return p, store, nil
}

// collectFiles describes the given paths and, if dir is set, every regular
// file below dir.
func collectFiles(paths []string, dir string) ([]upload.File, error) {
	var files []upload.File

	for _, p := range paths {
		f, err := upload.FileFromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	if dir == "" {
		return files, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("folder not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := upload.FileFromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %s: %w", dir, err)
	}
	return files, nil
}

// addFiles offers files to the pipeline and prints the rejection notice.
func addFiles(cmd *cobra.Command, p *upload.Pipeline, files []upload.File, log zerolog.Logger) (upload.Selection, error) {
	sel, err := p.Add(files...)
	if err != nil {
		return sel, err
	}

	if notice := sel.Notice(); notice != nil {
		log.Warn().Int("rejected", len(sel.Rejected)).Msg("Unsupported files skipped")
		fmt.Fprintln(cmd.ErrOrStderr(), notice.Error())
	}
	return sel, nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("queue")

	dir, _ := cmd.Flags().GetString("dir")
	if len(args) == 0 && dir == "" {
		return errors.New("give at least one file or --dir")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	files, err := collectFiles(args, dir)
	if err != nil {
		return err
	}

	p, store, err := openPipeline(cfg, nil)
	if err != nil {
		return handleQueueError(err, log)
	}
	defer store.Close()

	sel, err := addFiles(cmd, p, files, log)
	if err != nil {
		return handleQueueError(err, log)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) queued, %d in queue.\n", len(sel.Accepted), len(p.Tasks()))
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("queue")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, store, err := openPipeline(cfg, nil)
	if err != nil {
		return handleQueueError(err, log)
	}
	defer store.Close()

	newRenderer(cmd).Tasks(p.Tasks())
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("queue")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, store, err := openPipeline(cfg, nil)
	if err != nil {
		return handleQueueError(err, log)
	}
	defer store.Close()

	for _, id := range args {
		if err := p.Remove(id); err != nil {
			return handleQueueError(fmt.Errorf("%s: %w", id, err), log)
		}
		log.Info().Str("task_id", id).Msg("Removed from queue")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) removed, %d in queue.\n", len(args), len(p.Tasks()))
	return nil
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("queue")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, store, err := openPipeline(cfg, nil)
	if err != nil {
		return handleQueueError(err, log)
	}
	defer store.Close()

	if err := p.Clear(); err != nil {
		return handleQueueError(err, log)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Queue cleared.")
	return nil
}

// handleQueueError turns queue errors into user-facing messages.
func handleQueueError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Queue operation failed")

	switch {
	case errors.Is(err, upload.ErrTaskNotFound):
		return fmt.Errorf("no queued file with that id. Run 'invoicectl queue list' to see task ids")
	case errors.Is(err, upload.ErrTaskNotQueued):
		return fmt.Errorf("that file is part of an upload in progress and cannot be removed")
	case errors.Is(err, upload.ErrUploadInProgress):
		return fmt.Errorf("an upload is already in progress")
	default:
		return fmt.Errorf("queue operation failed: %w", err)
	}
}
