// Package watcher imports PDF files dropped into an inbox directory, using fsnotify with debouncing.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Importer adds a file on disk to an identity's library.
type Importer interface {
	ImportFile(ctx context.Context, identity, path string, allowedExts []string) (*models.Document, error)
}

// Inbox watches one directory. Matching files are imported for a fixed identity
// and removed once imported; files that fail to import are left in place.
type Inbox struct {
	dir        string
	identity   string
	extensions []string
	importer   Importer
	debounce   time.Duration
	onImported func(path string, doc *models.Document, err error)
	logger     *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for import events.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) { in.debounce = d }
}

// WithCallback is called after every import attempt.
func WithCallback(fn func(path string, doc *models.Document, err error)) Option {
	return func(in *Inbox) { in.onImported = fn }
}

// NewInbox creates an inbox importing files from dir for identity.
// extensions filters which files are imported (empty = all).
func NewInbox(dir, identity string, extensions []string, importer Importer, opts ...Option) *Inbox {
	in := &Inbox{
		dir:        filepath.Clean(dir),
		identity:   identity,
		extensions: extensions,
		importer:   importer,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Dir returns the watched directory.
func (in *Inbox) Dir() string {
	return in.dir
}

// Start creates the inbox if missing and begins watching it. It runs until ctx is
// cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return nil
	}
	if in.identity == "" {
		return errors.New("inbox requires an identity to import for")
	}
	if err := os.MkdirAll(in.dir, 0755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(in.dir); err != nil {
		_ = w.Close()
		return err
	}
	in.watcher = w
	in.ctx = ctx
	in.started = true
	in.logger.Debug("inbox watching", zap.String("dir", in.dir), zap.Strings("extensions", in.extensions))
	go in.run(ctx, w)
	return nil
}

// Run starts the inbox, imports files already present, and blocks until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	if err := in.Start(ctx); err != nil {
		return err
	}
	in.SyncExisting()
	select {
	case <-ctx.Done():
	case <-in.done:
	}
	in.Stop()
	return nil
}

func (in *Inbox) run(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				in.logger.Debug("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if filepath.Dir(filepath.Clean(path)) != in.dir {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if matchExtension(path, in.extensions) {
			in.debounceImport(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		in.cancelDebounce(path)
	}
}

func matchExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	if len(extensions) == 0 {
		return true
	}
	for _, e := range extensions {
		eNorm := strings.TrimPrefix(strings.ToLower(e), ".")
		extNorm := strings.TrimPrefix(strings.ToLower(ext), ".")
		if eNorm == extNorm {
			return true
		}
	}
	return false
}

func (in *Inbox) debounceImport(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.importFile(path)
	})
}

func (in *Inbox) cancelDebounce(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) importFile(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	doc, err := in.importer.ImportFile(ctx, in.identity, path, in.extensions)
	if err != nil {
		in.logger.Warn("inbox import failed", zap.String("path", path), zap.Error(err))
	} else {
		in.logger.Info("Imported document from inbox", zap.String("path", path), zap.String("id", doc.ID))
		if rmErr := os.Remove(path); rmErr != nil {
			in.logger.Warn("failed to remove imported file", zap.String("path", path), zap.Error(rmErr))
		}
	}
	if in.onImported != nil {
		in.onImported(path, doc, err)
	}
}

// SyncExisting imports every matching file already in the inbox.
func (in *Inbox) SyncExisting() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Debug("inbox sync failed", zap.String("dir", in.dir), zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(in.dir, e.Name())
		if matchExtension(path, in.extensions) {
			in.cancelDebounce(path)
			in.importFile(path)
		}
	}
}

// Stop stops watching and drops pending imports.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.watcher.Close()
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}
