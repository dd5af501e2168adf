// Package assets keeps a worker's global asset registry in sync with a
// directory. Each image, font or audio file is decoded and registered under
// its file name without extension, so "logo.png" becomes the global image
// "logo".
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"

	"github.com/animkit/animkit/pkg/client"
	"github.com/animkit/animkit/pkg/policy"
	"github.com/animkit/animkit/pkg/protocol"
	"github.com/animkit/animkit/pkg/telemetry"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle.
const DefaultDebounce = 100 * time.Millisecond

// ErrUnsupported is returned for files that are not images, fonts or audio.
var ErrUnsupported = errors.New("unsupported asset type")

// ErrDenied is returned when an admission policy rejects a file.
var ErrDenied = errors.New("asset denied by policy")

// Asset is one registered file.
type Asset struct {
	Name   string
	Kind   protocol.Kind
	Path   string
	Handle protocol.Handle
	MIME   string

	res io.Closer
}

// Library registers the files of one directory as global assets.
type Library struct {
	worker   *client.Worker
	dir      string
	debounce time.Duration
	log      *telemetry.Logger
	tel      *telemetry.Telemetry
	policies *policy.Engine

	mu     sync.Mutex
	assets map[string]*Asset // by path

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Option configures a Library.
type Option func(*Library)

func WithDebounce(d time.Duration) Option {
	return func(l *Library) {
		if d > 0 {
			l.debounce = d
		}
	}
}

// WithPolicy evaluates every file against e before it is registered.
func WithPolicy(e *policy.Engine) Option {
	return func(l *Library) {
		l.policies = e
	}
}

// New creates a library for dir. Nothing is loaded until Load or Watch.
func New(w *client.Worker, dir string, opts ...Option) *Library {
	tel := w.Telemetry()
	l := &Library{
		worker:   w,
		dir:      dir,
		debounce: DefaultDebounce,
		tel:      tel,
		log:      tel.Logger.NewComponentLogger("assets").WithField("dir", dir),
		assets:   make(map[string]*Asset),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load registers every supported file in the directory. Subdirectories are
// not scanned. Files that fail to decode are logged and skipped.
func (l *Library) Load(ctx context.Context) error {
	var loaded int
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.dir {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if err := l.Sync(ctx, path); err != nil {
			if !errors.Is(err, ErrUnsupported) {
				l.log.WithError(err).Warnf("skipping %s", path)
			}
			return nil
		}
		loaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load assets from %s: %w", l.dir, err)
	}

	l.log.Infof("registered %d global assets", loaded)
	return nil
}

// Sync registers the file at path, or removes its registration if the file
// no longer exists.
func (l *Library) Sync(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l.Remove(path)
	}
	if info, serr := os.Stat(path); serr == nil && info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrUnsupported)
	}
	if err != nil {
		return fmt.Errorf("failed to read asset: %w", err)
	}

	kind, mime := classify(data)
	if kind == "" {
		return fmt.Errorf("%s (%s): %w", path, mime, ErrUnsupported)
	}
	name := NameOf(path)
	if err := l.admit(ctx, name, kind, mime, path, int64(len(data))); err != nil {
		return err
	}

	asset := &Asset{Name: name, Kind: kind, Path: path, MIME: mime}
	if err := l.register(ctx, asset, data); err != nil {
		return err
	}

	l.mu.Lock()
	prev := l.assets[path]
	l.assets[path] = asset
	l.mu.Unlock()

	if prev != nil {
		if prev.Kind != kind {
			l.unregister(prev)
		}
		_ = prev.res.Close()
	}

	l.log.Debugf("registered %s %q from %s", kind, name, path)
	l.publishCounts()
	if err := l.tel.Events.PublishAssetRegistered(l.worker.ID(), string(kind), name, uint64(asset.Handle)); err != nil {
		l.log.WithError(err).Debug("publishing asset registered")
	}
	return nil
}

func (l *Library) admit(ctx context.Context, name string, kind protocol.Kind, mime, path string, size int64) error {
	if l.policies == nil {
		return nil
	}
	decision, err := l.policies.Evaluate(ctx, &policy.Input{
		Asset: policy.AssetInput{Name: name, Kind: string(kind), MIME: mime, Size: size, Path: path},
		Context: policy.InputContext{
			WorkerID:  l.worker.ID(),
			Operation: "register",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate policies for %s: %w", path, err)
	}
	for _, w := range decision.Warnings {
		l.log.WithField("policy", w.Policy).Warn(w.Message)
	}
	if !decision.Allowed {
		v := decision.Violations[0]
		return fmt.Errorf("%s: %s (%s): %w", path, v.Message, v.Policy, ErrDenied)
	}
	return nil
}

func (l *Library) register(ctx context.Context, asset *Asset, data []byte) error {
	switch asset.Kind {
	case protocol.KindImage:
		img, err := l.worker.DecodeImage(ctx, data)
		if err != nil {
			return err
		}
		asset.res, asset.Handle = img, img.Handle()
		return l.worker.AddGlobalImageAsset(img, asset.Name)
	case protocol.KindFont:
		font, err := l.worker.DecodeFont(ctx, data)
		if err != nil {
			return err
		}
		asset.res, asset.Handle = font, font.Handle()
		return l.worker.AddGlobalFontAsset(font, asset.Name)
	default:
		audio, err := l.worker.DecodeAudio(ctx, data)
		if err != nil {
			return err
		}
		asset.res, asset.Handle = audio, audio.Handle()
		return l.worker.AddGlobalAudioAsset(audio, asset.Name)
	}
}

// Remove drops the registration made for path.
func (l *Library) Remove(path string) error {
	l.mu.Lock()
	asset, ok := l.assets[path]
	delete(l.assets, path)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := l.unregister(asset)
	if cerr := asset.res.Close(); err == nil {
		err = cerr
	}
	l.log.Debugf("removed %s %q", asset.Kind, asset.Name)
	l.publishCounts()
	return err
}

func (l *Library) unregister(asset *Asset) error {
	var err error
	switch asset.Kind {
	case protocol.KindImage:
		err = l.worker.RemoveGlobalImageAsset(asset.Name)
	case protocol.KindFont:
		err = l.worker.RemoveGlobalFontAsset(asset.Name)
	case protocol.KindAudio:
		err = l.worker.RemoveGlobalAudioAsset(asset.Name)
	}
	if perr := l.tel.Events.PublishAssetRemoved(l.worker.ID(), string(asset.Kind), asset.Name); perr != nil {
		l.log.WithError(perr).Debug("publishing asset removed")
	}
	return err
}

// Assets returns the registered assets sorted by name.
func (l *Library) Assets() []Asset {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Asset, 0, len(l.assets))
	for _, a := range l.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (l *Library) publishCounts() {
	counts := map[protocol.Kind]int{protocol.KindImage: 0, protocol.KindFont: 0, protocol.KindAudio: 0}
	l.mu.Lock()
	for _, a := range l.assets {
		counts[a.Kind]++
	}
	l.mu.Unlock()
	for kind, n := range counts {
		l.tel.Metrics.SetGlobalAssets(string(kind), n)
	}
}

// Watch loads the directory and keeps the registry in sync with it until ctx
// ends or Close is called.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}
	if err := l.Load(ctx); err != nil {
		_ = watcher.Close()
		return err
	}

	l.watcher = watcher
	l.done = make(chan struct{})
	go l.processEvents(ctx)

	l.log.Info("watching for asset changes")
	return nil
}

// processEvents batches file events and syncs each changed path once the
// batch has been quiet for the debounce interval.
func (l *Library) processEvents(ctx context.Context) {
	defer close(l.done)

	pending := make(map[string]struct{})
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") || event.Op == fsnotify.Chmod {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(l.debounce)
			} else {
				timer.Reset(l.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			for path := range pending {
				if err := l.Sync(ctx, path); err != nil && !errors.Is(err, ErrUnsupported) {
					l.log.WithError(err).Warnf("syncing %s", path)
				}
			}
			pending = make(map[string]struct{})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.WithError(err).Warn("watcher error")
		}
	}
}

// Close stops watching and removes every registration.
func (l *Library) Close() error {
	var errs []error
	if l.watcher != nil {
		errs = append(errs, l.watcher.Close())
		<-l.done
		l.watcher = nil
	}

	l.mu.Lock()
	paths := make([]string, 0, len(l.assets))
	for path := range l.assets {
		paths = append(paths, path)
	}
	l.mu.Unlock()

	for _, path := range paths {
		errs = append(errs, l.Remove(path))
	}
	return errors.Join(errs...)
}

// NameOf returns the global name a file registers under.
func NameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func classify(data []byte) (protocol.Kind, string) {
	mt := mimetype.Detect(data)
	mime := mt.String()
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return protocol.KindImage, mime
		case strings.HasPrefix(m.String(), "font/"), m.Is("application/font-sfnt"):
			return protocol.KindFont, mime
		case strings.HasPrefix(m.String(), "audio/"):
			return protocol.KindAudio, mime
		}
	}
	return "", mime
}
