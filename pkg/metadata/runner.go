package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/objectstore"
)

// ErrClosed is returned when a sync is requested after Close.
var ErrClosed = errors.New("payload sync runner closed")

// SyncRequest selects what a background sync patches. Filename wins over
// All when both are set.
type SyncRequest struct {
	Filename string `json:"filename,omitempty"`
	All      bool   `json:"all"`
}

// Validate requires a filename or All.
func (r SyncRequest) Validate() error {
	if r.Filename == "" && !r.All {
		return errdefs.Invalid("body", "either filename or all must be provided")
	}
	return nil
}

// Runner runs payload syncs in the background, one at a time. It is safe for
// concurrent use.
type Runner struct {
	syncer *Syncer
	bucket objectstore.Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	closed  bool
}

// NewRunner creates a Runner. bucket is only used by Missing and may be nil.
func NewRunner(syncer *Syncer, bucket objectstore.Store, logger *slog.Logger) (*Runner, error) {
	if syncer == nil {
		return nil, errors.New("syncer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		syncer: syncer,
		bucket: bucket,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start schedules req in the background. A sync that is still running makes
// Start fail with errdefs.ErrAlreadyRunning.
func (r *Runner) Start(req SyncRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.running {
		return fmt.Errorf("%w: payload sync", errdefs.ErrAlreadyRunning)
	}
	r.running = true
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.finish()
		r.run(req)
	}()
	return nil
}

func (r *Runner) run(req SyncRequest) {
	if req.Filename != "" {
		if _, err := r.syncer.SyncOne(r.ctx, req.Filename); err != nil {
			r.logger.Error("payload update failed", "filename", req.Filename, "error", err)
		}
		return
	}

	r.logger.Info("payload sync started")
	if _, err := r.syncer.SyncAll(r.ctx, nil); err != nil {
		r.logger.Error("payload sync failed", "error", err)
	}
}

func (r *Runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

// Running reports whether a sync is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Missing reports records without an indexed image, checked against the
// bucket when one is configured.
func (r *Runner) Missing(ctx context.Context) (*MissingReport, error) {
	return r.syncer.Missing(ctx, r.bucket)
}

// Close cancels an active sync and waits for it.
func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}
