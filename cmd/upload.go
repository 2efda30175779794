package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files...]",
	Short: "Upload invoice files to the backend in one batch",
	Long: `Upload invoice files to the backend as one multipart batch.

The given files (and every file under --dir) are added to the local upload
queue first; unsupported types are skipped and reported as a count. The whole
queue is then sent in one request with a progress bar. Each file gets its own
result: records extracted, rejected with a reason, or failed. When the backend
cannot be reached every file of the batch is marked failed.

Accepted types: PDF, XLSX, XLS, CSV, JPEG, PNG, ZIP.`,
	Example: `  # Upload two files
  invoicectl upload january.pdf february.xlsx

  # Upload a whole folder
  invoicectl upload --dir ./scans

  # Send whatever was queued earlier with 'invoicectl queue add'
  invoicectl upload

  # Keep the files queued if the backend is down
  invoicectl upload --dir ./scans --keep-queue`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("dir", "", "Add every file in this folder (recursively)")
	uploadCmd.Flags().Bool("keep-queue", false, "Keep files queued when the backend is unreachable (overrides UPLOAD_KEEP_QUEUE_ON_FAILURE)")
	uploadCmd.Flags().Bool("no-logs", false, "Do not show the recent upload history afterwards")
}

func runUpload(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("upload")

	dir, _ := cmd.Flags().GetString("dir")
	keepQueue, _ := cmd.Flags().GetBool("keep-queue")
	noLogs, _ := cmd.Flags().GetBool("no-logs")

	api, cfg, err := newAPIClient(cmd)
	if err != nil {
		return err
	}
	if keepQueue {
		cfg.KeepQueueOnUploadFailure = true
	}

	files, err := collectFiles(args, dir)
	if err != nil {
		return err
	}

	bar := newProgressBar(cmd.ErrOrStderr())
	p, store, err := openPipeline(cfg, api, upload.WithProgressObserver(bar.update))
	if err != nil {
		return handleQueueError(err, log)
	}
	defer store.Close()

	if len(files) > 0 {
		if _, err := addFiles(cmd, p, files, log); err != nil {
			return handleQueueError(err, log)
		}
	}

	queued := len(p.Tasks())
	log.Info().
		Str("api_url", api.BaseURL()).
		Int("files", queued).
		Bool("keep_queue", cfg.KeepQueueOnUploadFailure).
		Msg("Starting upload")

	if queued > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Uploading %d file(s)...\n", queued)
	}

	ctx, cancel := commandContext(cfg.UploadTimeout, log)
	defer cancel()

	result, err := p.Submit(ctx)
	bar.finish()

	renderer := newRenderer(cmd)
	if result != nil {
		renderer.UploadResult(result)
	}
	if err != nil {
		return handleUploadError(err, log)
	}

	if !noLogs {
		showRecentLogs(ctx, cmd, api, log)
	}
	return nil
}

// showRecentLogs prints the latest upload history entries. The history is
// informational; failing to load it is only logged.
func showRecentLogs(ctx context.Context, cmd *cobra.Command, api *client.Client, log zerolog.Logger) {
	logs, err := api.ListLogs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load upload history")
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nRecent uploads")
	newRenderer(cmd).Logs(logs, upload.RecentLogLimit)
}

// progressBar draws a single-line percentage bar on w.
type progressBar struct {
	w     io.Writer
	shown bool
}

const progressWidth = 30

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (b *progressBar) update(percent int) {
	filled := percent * progressWidth / 100
	fmt.Fprintf(b.w, "\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(" ", progressWidth-filled), percent)
	b.shown = true
}

func (b *progressBar) finish() {
	if b.shown {
		fmt.Fprintln(b.w)
		b.shown = false
	}
}

// handleUploadError turns pipeline errors into user-facing messages.
func handleUploadError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Upload failed")

	var transportErr *upload.TransportError
	switch {
	case errors.Is(err, upload.ErrEmptyQueue):
		return fmt.Errorf("please select at least one file. Give files as arguments, use --dir, or queue them with 'invoicectl queue add'")
	case errors.Is(err, upload.ErrUploadInProgress):
		return fmt.Errorf("an upload is already in progress")
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("upload timed out. Try a smaller batch or increase UPLOAD_TIMEOUT")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("upload was canceled")
	case errors.As(err, &transportErr) && errors.Is(err, client.ErrNoResponse):
		return fmt.Errorf("could not reach the invoice backend; all %d file(s) marked failed. Check INVOICE_API_URL or --api-url", transportErr.Files)
	case errors.As(err, &transportErr):
		return fmt.Errorf("the backend did not return usable results; all %d file(s) marked failed: %w", transportErr.Files, transportErr.Err)
	default:
		return fmt.Errorf("upload failed: %w", err)
	}
}
