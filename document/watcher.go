package document

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 500 * time.Millisecond

// ChangeCallback receives each newly loaded document
type ChangeCallback func(doc any) error

// Watcher reloads a document whenever its file changes on disk.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a temp file over the original keep being tracked.
type Watcher struct {
	path           string
	watcher        *fsnotify.Watcher
	callbacks      []ChangeCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	log            *zap.SugaredLogger

	ownWriteMu sync.Mutex
	ownWrite   []byte // content last written by us; a reload finding it is skipped

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for the document at path. debounce <= 0
// uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, log *zap.SugaredLogger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	if _, err := FormatOf(abs); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.ComponentLogger("document")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:           abs,
		watcher:        fw,
		debouncePeriod: debounce,
		log:            log.With(logger.FieldPath, abs),
		done:           make(chan struct{}),
	}, nil
}

// OnChange registers a callback run after every successful reload
func (w *Watcher) OnChange(callback ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// MarkOwnWrite records content about to be written by this process. A
// reload that reads exactly this content does not call back.
func (w *Watcher) MarkOwnWrite(data []byte) {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	w.ownWrite = bytes.Clone(data)
}

func (w *Watcher) isOwnWrite(data []byte) bool {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	return w.ownWrite != nil && bytes.Equal(w.ownWrite, data)
}

// Start begins watching for changes
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debugw("Document watcher detected change", "op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("Document watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	if isBackupFile(event.Name) {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// scheduleReload debounces rapid file changes
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			w.log.Warnw("Document reload failed", logger.FieldError, err)
		}
	})
}

func (w *Watcher) reload() error {
	format, _ := FormatOf(w.path)
	data, err := os.ReadFile(w.path)
	if err != nil {
		return errors.Wrapf(err, "failed to read document %s", w.path)
	}
	if w.isOwnWrite(data) {
		w.log.Debugw("Document watcher ignoring own write")
		return nil
	}

	doc, err := Decode(data, format)
	if err != nil {
		return errors.Wrapf(err, "document %s", w.path)
	}

	w.mu.RLock()
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.log.Infow("Document reloaded")
	for _, callback := range callbacks {
		// keep calling the rest even if one fails
		if err := callback(doc); err != nil {
			w.log.Warnw("Document change callback error", logger.FieldError, err)
		}
	}
	return nil
}

// Stop stops watching and cancels a pending reload
func (w *Watcher) Stop() error {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.done)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

var backupSuffix = regexp.MustCompile(`\.back[0-9]+$`)

// isBackupFile reports rotated backups and common editor temp files
func isBackupFile(path string) bool {
	base := filepath.Base(path)
	return backupSuffix.MatchString(base) ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasPrefix(base, ".#")
}
