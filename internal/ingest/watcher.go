// Package ingest uploads files dropped into a watched directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"certmap/internal/domain"
	"certmap/internal/service"
)

// Uploader is the subset of service.DocumentService the watcher needs.
type Uploader interface {
	Upload(ctx context.Context, input *service.UploadInput) ([]domain.Document, error)
}

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Dir      string
	Debounce time.Duration
	// Uploader is recorded on documents created by the watcher.
	Uploader string
}

// Watcher uploads files created in Dir once writes to them have settled.
// Files already present at start are left alone.
type Watcher struct {
	cfg      WatchConfig
	uploads  Uploader
	imported map[string]fileStamp
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(cfg WatchConfig, uploads Uploader) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Watcher{cfg: cfg, uploads: uploads, imported: make(map[string]fileStamp)}
}

// Run watches the directory until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("ingest.Run: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest.Run: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("ingest.Run: watch %s: %w", w.cfg.Dir, err)
	}
	log.Printf("ingest: watching %s (debounce=%s)", w.cfg.Dir, w.cfg.Debounce)

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			log.Printf("ingest: stopped watching %s", w.cfg.Dir)
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !accepted(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.cfg.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("ingest: watcher error: %v", err)
		case <-timer.C:
			for path := range pending {
				delete(pending, path)
				w.ingest(ctx, path)
			}
		}
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		// Renamed away or deleted before it settled.
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("ingest: open %s: %v", path, err)
		}
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	if prev, ok := w.imported[path]; ok && prev == stamp {
		return
	}

	docs, err := w.uploads.Upload(ctx, &service.UploadInput{
		Files:    []service.UploadFile{{Name: filepath.Base(path), Size: info.Size(), Body: f}},
		Uploader: w.cfg.Uploader,
		Context:  "watch:" + path,
		Trigger:  domain.TriggerWatcher,
	})
	if err != nil {
		// A rejected file is not offered again until it changes; anything
		// else is retried on the next write.
		if domain.IsInputError(err) {
			w.imported[path] = stamp
			log.Printf("ingest: rejected %s: %v", path, err)
			return
		}
		log.Printf("ingest: upload %s: %v", path, err)
		return
	}
	w.imported[path] = stamp
	for i := range docs {
		log.Printf("ingest: %s imported as document %s (status=%s)", path, docs[i].ID, docs[i].Status)
	}
}

func accepted(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := domain.AllowedExtensions[ext]
	return ok
}
