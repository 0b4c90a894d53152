package mcpservice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// DirResources mirrors the regular files below an OS directory into a
// Resources registry and keeps it current with fsnotify. Symlinks that
// resolve outside the root are never served.
type DirResources struct {
	log     *slog.Logger
	res     *Resources
	root    string // absolute, symlink-evaluated
	baseURI string
}

// DirOption configures DirResources.
type DirOption func(*DirResources)

// WithBaseURI sets the URI prefix for resources (default "file://<root>").
func WithBaseURI(base string) DirOption {
	return func(d *DirResources) { d.baseURI = strings.TrimRight(base, "/") }
}

// WithDirLogger sets the logger used by the watcher.
func WithDirLogger(l *slog.Logger) DirOption {
	return func(d *DirResources) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDirResources binds the directory at root to res. The directory must
// exist. Call Sync to seed the registry and Watch to follow changes.
func NewDirResources(res *Resources, root string, opts ...DirOption) (*DirResources, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	fi, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}

	d := &DirResources{
		log:     slog.Default(),
		res:     res,
		root:    real,
		baseURI: "file://" + filepath.ToSlash(real),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Root returns the resolved root directory.
func (d *DirResources) Root() string { return d.root }

// Sync rescans the directory, registering new files and removing vanished
// ones. The registry emits its change notifications as usual.
func (d *DirResources) Sync(ctx context.Context) error {
	seen := make(map[string]struct{})
	var fresh []ResourceProvider

	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() || !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return nil
		}
		uri := d.relToURI(filepath.ToSlash(rel))
		seen[uri] = struct{}{}
		if !d.res.Has(uri) {
			fresh = append(fresh, &fileResource{dir: d, uri: uri, rel: filepath.ToSlash(rel)})
		}
		return nil
	})
	if err != nil {
		return err
	}

	var stale []string
	for _, r := range d.res.List() {
		if !strings.HasPrefix(r.URI, d.baseURI+"/") {
			continue
		}
		if _, ok := seen[r.URI]; !ok {
			stale = append(stale, r.URI)
		}
	}

	if len(stale) > 0 {
		if _, err := d.res.Remove(ctx, stale...); err != nil {
			return err
		}
	}
	return d.res.Register(ctx, fresh...)
}

// Watch follows filesystem events until ctx is done. Creates, removes and
// renames trigger a Sync; writes emit resources/updated for subscribed
// files.
func (d *DirResources) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	err = filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil || !e.IsDir() {
			return nil
		}
		return w.Add(p)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", d.root, err)
	}

	if err := d.Sync(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			d.handleEvent(ctx, w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.WarnContext(ctx, "dir_resources.watch.fail", slog.String("err", err.Error()))
		}
	}
}

func (d *DirResources) handleEvent(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.Add(ev.Name)
		}
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if err := d.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.WarnContext(ctx, "dir_resources.sync.fail", slog.String("err", err.Error()))
		}
	}
	if ev.Has(fsnotify.Write) {
		rel, err := filepath.Rel(d.root, ev.Name)
		if err != nil || !filepath.IsLocal(rel) {
			return
		}
		uri := d.relToURI(filepath.ToSlash(rel))
		if err := d.res.NotifyUpdated(ctx, uri); err != nil {
			d.log.WarnContext(ctx, "dir_resources.notify_updated.fail", slog.String("uri", uri), slog.String("err", err.Error()))
		}
	}
}

func (d *DirResources) relToURI(rel string) string {
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return d.baseURI + "/" + strings.Join(segs, "/")
}

func (d *DirResources) read(uri, rel string) ([]mcp.ResourceContents, error) {
	abs := filepath.Join(d.root, filepath.FromSlash(rel))
	real, err := filepath.EvalSymlinks(abs)
	if err != nil || !within(real, d.root) {
		return nil, mcp.NewError(mcp.KindInvalidRequest, "resource not found: %s", uri)
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindInternal, err, "read %s", uri)
	}
	mt := mime.TypeByExtension(strings.ToLower(path.Ext(rel)))
	if mt == "" {
		mt = "application/octet-stream"
	}
	if utf8.Valid(data) {
		return []mcp.ResourceContents{{URI: uri, MimeType: mt, Text: string(data)}}, nil
	}
	return []mcp.ResourceContents{{URI: uri, MimeType: mt, Blob: base64.StdEncoding.EncodeToString(data)}}, nil
}

// within reports whether target is root or lies below it.
func within(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || filepath.IsLocal(rel)
}

type fileResource struct {
	dir *DirResources
	uri string
	rel string
}

func (f *fileResource) Resource() mcp.Resource {
	return mcp.Resource{
		URI:      f.uri,
		Name:     path.Base(f.rel),
		MimeType: mime.TypeByExtension(strings.ToLower(path.Ext(f.rel))),
	}
}

func (f *fileResource) Read(context.Context) ([]mcp.ResourceContents, error) {
	return f.dir.read(f.uri, f.rel)
}
