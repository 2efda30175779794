// Package upload implements the batch upload pipeline.
//
// Files are offered with Add and checked against the accepted types; only
// accepted files become queued tasks. Submit sends every queued task as one
// multipart request, reports byte progress for the whole batch, and resolves
// each file to a typed Outcome. A batch that gets no usable answer is failed
// as a whole with a TransportError.
//
// At most one batch is in flight per Pipeline. Queue edits remain possible
// while a batch is in flight and never touch the tasks being uploaded.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/logger"
)

// RecentLogLimit is how many upload log entries are shown after a batch.
const RecentLogLimit = 10

// Uploader sends one batch. *client.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, files []client.UploadFile, progress client.ProgressFunc) (*client.UploadResponse, error)
}

// ResetPolicy decides what happens to the queue after a batch resolves.
type ResetPolicy int

const (
	// ResetAlways clears the submitted files from the queue after every
	// batch, including one that failed in transport.
	ResetAlways ResetPolicy = iota

	// ResetOnResolution clears the submitted files only when the backend
	// answered; after a transport failure they go back to queued.
	ResetOnResolution
)

// ProgressObserver receives the batch progress in percent (0-100).
type ProgressObserver func(percent int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore persists the queue in store.
func WithStore(store QueueStore) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithResetPolicy sets the reset policy. The default is ResetAlways.
func WithResetPolicy(policy ResetPolicy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithProgressObserver registers an observer for progress updates.
func WithProgressObserver(fn ProgressObserver) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithOpener replaces os.Open for reading queued files.
func WithOpener(open func(path string) (io.ReadCloser, error)) Option {
	return func(p *Pipeline) {
		p.open = open
	}
}

// Selection is the result of offering files to the pipeline.
type Selection struct {
	Accepted []Task
	Rejected []File
}

// Notice returns a ValidationError summarizing rejected files, or nil.
// Rejected files are reported as a count only.
func (s Selection) Notice() error {
	if len(s.Rejected) == 0 {
		return nil
	}
	return NewValidationError(ErrUnsupportedType,
		fmt.Sprintf("%d file(s) rejected — unsupported type.", len(s.Rejected)))
}

// Pipeline is the upload state machine.
type Pipeline struct {
	mu       sync.Mutex
	uploader Uploader
	store    QueueStore
	policy   ResetPolicy
	observer ProgressObserver
	open     func(path string) (io.ReadCloser, error)
	log      zerolog.Logger

	tasks    []Task
	results  *BatchResult
	inFlight bool
	progress int
}

// NewPipeline creates a pipeline. With a store, the saved queue is loaded;
// tasks left in the submitted state by an interrupted run are queued again.
func NewPipeline(uploader Uploader, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		uploader: uploader,
		policy:   ResetAlways,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		log: logger.WithComponent("upload"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.store != nil {
		tasks, err := p.store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading queue: %w", err)
		}
		for i := range tasks {
			if tasks[i].State != StateQueued {
				tasks[i].State = StateQueued
			}
		}
		p.tasks = tasks
	}

	return p, nil
}

// Add offers files to the queue. Accepted files become queued tasks;
// rejected ones are returned in the Selection and never queued. Any
// previous batch's results are cleared.
func (p *Pipeline) Add(files ...File) (Selection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sel Selection
	now := time.Now().UTC()
	for _, f := range files {
		if !Accepts(f.Name, f.ContentType) {
			sel.Rejected = append(sel.Rejected, f)
			continue
		}
		t := Task{
			ID:          uuid.NewString(),
			Path:        f.Path,
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
			State:       StateQueued,
			AddedAt:     now,
		}
		sel.Accepted = append(sel.Accepted, t)
	}

	p.results = nil
	if len(sel.Accepted) > 0 {
		p.tasks = append(p.tasks, sel.Accepted...)
		if err := p.persistLocked(); err != nil {
			p.tasks = p.tasks[:len(p.tasks)-len(sel.Accepted)]
			return Selection{}, err
		}
	}

	p.log.Debug().
		Int("accepted", len(sel.Accepted)).
		Int("rejected", len(sel.Rejected)).
		Int("queued", len(p.tasks)).
		Msg("Files offered to queue")

	return sel, nil
}

// Remove drops a queued task.
func (p *Pipeline) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, t := range p.tasks {
		if t.ID != id {
			continue
		}
		if t.State != StateQueued {
			return ErrTaskNotQueued
		}
		next := make([]Task, 0, len(p.tasks)-1)
		next = append(next, p.tasks[:i]...)
		next = append(next, p.tasks[i+1:]...)
		prev := p.tasks
		p.tasks = next
		if err := p.persistLocked(); err != nil {
			p.tasks = prev
			return err
		}
		return nil
	}
	return ErrTaskNotFound
}

// Clear drops every queued task. Tasks of an in-flight batch are kept.
func (p *Pipeline) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.tasks[:0:0]
	for _, t := range p.tasks {
		if t.State != StateQueued {
			kept = append(kept, t)
		}
	}
	p.tasks = kept
	return p.persistLocked()
}

// Tasks returns a copy of the queue.
func (p *Pipeline) Tasks() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Task, len(p.tasks))
	copy(out, p.tasks)
	return out
}

// Results returns the last resolved batch, or nil.
func (p *Pipeline) Results() *BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Progress returns the current batch progress in percent.
func (p *Pipeline) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// InFlight reports whether a batch is being uploaded.
func (p *Pipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Submit uploads every queued task as one batch.
//
// An empty queue fails with a ValidationError and nothing is sent. A second
// Submit while a batch is in flight fails with ErrUploadInProgress. When the
// backend answers, Submit returns the per-file outcomes and a nil error even
// if some files were rejected or failed. When it does not, Submit returns a
// BatchResult with a TransportFailure for every file and a *TransportError.
func (p *Pipeline) Submit(ctx context.Context) (*BatchResult, error) {
	batch, err := p.begin()
	if err != nil {
		return nil, err
	}

	p.log.Info().Int("files", len(batch)).Msg("Submitting batch")

	files, closers, unreadable := p.openBatch(batch)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	var (
		resp    *client.UploadResponse
		sendErr error
	)
	if len(files) > 0 {
		resp, sendErr = p.uploader.Upload(ctx, files, p.reportProgress)
	} else {
		resp = &client.UploadResponse{}
	}

	if sendErr != nil {
		return p.failBatch(batch, sendErr)
	}
	return p.resolveBatch(batch, resp, unreadable), nil
}

func (p *Pipeline) begin() ([]Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight {
		return nil, ErrUploadInProgress
	}

	var batch []Task
	for i := range p.tasks {
		if p.tasks[i].State == StateQueued {
			batch = append(batch, p.tasks[i])
		}
	}
	if len(batch) == 0 {
		return nil, NewValidationError(ErrEmptyQueue, "Please select at least one file.")
	}

	for i := range p.tasks {
		if p.tasks[i].State == StateQueued {
			p.tasks[i].State = StateSubmitted
		}
	}
	for i := range batch {
		batch[i].State = StateSubmitted
	}
	p.inFlight = true
	p.progress = 0
	if err := p.persistLocked(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to persist submitted queue")
	}
	return batch, nil
}

// openBatch opens every file of the batch. Files that cannot be read are
// left out of the request and resolved as Failed{KindUnreadable}.
func (p *Pipeline) openBatch(batch []Task) ([]client.UploadFile, []io.Closer, map[string]error) {
	var (
		files      []client.UploadFile
		closers    []io.Closer
		unreadable = make(map[string]error)
	)
	for _, t := range batch {
		rc, err := p.open(t.Path)
		if err != nil {
			p.log.Warn().Err(err).Str("file", t.Path).Msg("Queued file cannot be read")
			unreadable[t.ID] = err
			continue
		}
		closers = append(closers, rc)
		files = append(files, client.UploadFile{
			Name:        t.Name,
			ContentType: t.ContentType,
			Content:     rc,
		})
	}
	return files, closers, unreadable
}

// reportProgress converts bytes to a percentage that never goes down.
func (p *Pipeline) reportProgress(sent, total int64) {
	if total <= 0 {
		return
	}
	pct := int(math.Round(float64(sent) * 100 / float64(total)))
	if pct > 100 {
		pct = 100
	}

	p.mu.Lock()
	if pct <= p.progress {
		p.mu.Unlock()
		return
	}
	p.progress = pct
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(pct)
	}
}

func (p *Pipeline) failBatch(batch []Task, sendErr error) (*BatchResult, error) {
	p.log.Error().Err(sendErr).Int("files", len(batch)).Msg("Batch upload failed")

	result := &BatchResult{TransportErr: sendErr}
	for _, t := range batch {
		result.Files = append(result.Files, FileOutcome{
			TaskID:   t.ID,
			Filename: t.Name,
			Outcome:  TransportFailure{Err: sendErr},
		})
	}

	p.mu.Lock()
	if p.policy == ResetOnResolution {
		p.requeueLocked(batch)
	} else {
		p.dropLocked(batch)
	}
	p.finishLocked(result)
	p.mu.Unlock()

	return result, &TransportError{Files: len(batch), Err: sendErr}
}

func (p *Pipeline) resolveBatch(batch []Task, resp *client.UploadResponse, unreadable map[string]error) *BatchResult {
	result := &BatchResult{Files: reconcile(batch, resp.Results, unreadable)}

	succeeded, rejected, failed := result.Counts()
	p.log.Info().
		Int("succeeded", succeeded).
		Int("rejected", rejected).
		Int("failed", failed).
		Int("records", result.RecordsExtracted()).
		Msg("Batch resolved")

	p.mu.Lock()
	p.dropLocked(batch)
	p.finishLocked(result)
	p.mu.Unlock()

	return result
}

// reconcile pairs backend results with tasks: first by filename (each result
// used once), then by position among what is left. Tasks left without a
// result fail as KindMissing; results left without a task are kept with an
// empty TaskID so nothing the backend said is hidden.
func reconcile(batch []Task, results []client.FileResult, unreadable map[string]error) []FileOutcome {
	out := make([]FileOutcome, len(batch))
	claimed := make([]bool, len(results))
	matched := make([]bool, len(batch))

	for i, t := range batch {
		if err, ok := unreadable[t.ID]; ok {
			out[i] = FileOutcome{TaskID: t.ID, Filename: t.Name, Outcome: Failed{Kind: KindUnreadable, Reason: err.Error()}}
			matched[i] = true
			continue
		}
		for j, r := range results {
			if !claimed[j] && r.Filename == t.Name {
				claimed[j] = true
				matched[i] = true
				out[i] = FileOutcome{TaskID: t.ID, Filename: t.Name, Outcome: outcomeFromResult(r)}
				break
			}
		}
	}

	next := 0
	for i, t := range batch {
		if matched[i] {
			continue
		}
		for next < len(results) && claimed[next] {
			next++
		}
		if next < len(results) {
			claimed[next] = true
			out[i] = FileOutcome{TaskID: t.ID, Filename: t.Name, Outcome: outcomeFromResult(results[next])}
			continue
		}
		out[i] = FileOutcome{TaskID: t.ID, Filename: t.Name, Outcome: Failed{Kind: KindMissing, Reason: "no result returned for this file"}}
	}

	for j, r := range results {
		if !claimed[j] {
			out = append(out, FileOutcome{Filename: r.Filename, Outcome: outcomeFromResult(r)})
		}
	}
	return out
}

func (p *Pipeline) dropLocked(batch []Task) {
	ids := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		ids[t.ID] = struct{}{}
	}
	kept := p.tasks[:0:0]
	for _, t := range p.tasks {
		if _, ok := ids[t.ID]; !ok {
			kept = append(kept, t)
		}
	}
	p.tasks = kept
}

func (p *Pipeline) requeueLocked(batch []Task) {
	ids := make(map[string]struct{}, len(batch))
	for _, t := range batch {
		ids[t.ID] = struct{}{}
	}
	for i := range p.tasks {
		if _, ok := ids[p.tasks[i].ID]; ok {
			p.tasks[i].State = StateQueued
		}
	}
}

func (p *Pipeline) finishLocked(result *BatchResult) {
	p.results = result
	p.inFlight = false
	p.progress = 0
	if err := p.persistLocked(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to persist queue after batch")
	}
}

func (p *Pipeline) persistLocked() error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Save(p.tasks); err != nil {
		return fmt.Errorf("saving queue: %w", err)
	}
	return nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
