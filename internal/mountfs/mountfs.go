// Package mountfs adapts a browsing session (internal/browser) to
// billy.Filesystem, so it can be served read-only over NFSv3 (see
// server.go). BVFS never
// streams the real backed-up bytes back to a client (spec §1,
// Non-goals); every regular file this filesystem exposes is a metadata
// marker whose "content" is the entry's encoded LStat blob, enough for
// an NFS client to stat and browse the tree but not to restore it.
package mountfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/bareos/bvfs/internal/browser"
)

var errReadOnly = fmt.Errorf("mountfs: read-only filesystem")

// SessionFS is a read-only billy.Filesystem view of one browser.Session,
// rooted at whatever PathId the session's pwd held at New() time.
// Billy paths are resolved by walking PathHierarchy child-by-child from
// that root rather than by reconstructing and matching catalog Path
// text, since the two naming schemes (NFS path components vs. Bareos
// Path strings with trailing separators) are not identical.
//
// A SessionFS is not safe for concurrent use, matching the Session it
// wraps (spec §5: single caller goroutine per session).
type SessionFS struct {
	ctx       context.Context
	sess      *browser.Session
	rootID    uint64
	mountTime time.Time
}

// New returns a SessionFS rooted at sess's current directory (whatever
// pwd the caller navigated sess to via ChDir/ChDirID before mounting),
// driving sess for every filesystem operation. ctx is used for the
// catalog calls each operation issues.
//
// The mount root is deliberately the session's pwd, not the BVFS
// synthetic root returned by sess.Root: the empty-path root has no
// PathHierarchy edge to a client's own top-level paths ("/", "C:/", …;
// see original_source's build_path_hierarchy, which refuses to link a
// path whose parent is empty), so it would never list any children.
// Callers mount a concrete, already-resolved subtree.
func New(ctx context.Context, sess *browser.Session) *SessionFS {
	return &SessionFS{ctx: ctx, sess: sess, rootID: sess.Pwd(), mountTime: time.Now()}
}

func cleanPath(p string) string {
	p = filepath.Clean("/" + p)
	if p == "." {
		return "/"
	}
	return p
}

func splitComponents(p string) []string {
	p = cleanPath(p)
	if p == "/" {
		return nil
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// entry is one listing row translated into a billy-friendly shape.
type entry struct {
	pathID uint64
	name   string
	isDir  bool
	lstat  string
}

// childrenOf lists the directories and files visible directly under
// pathID, draining every page.
func (fs *SessionFS) childrenOf(pathID uint64) ([]entry, error) {
	fs.sess.ChDirID(pathID)

	var entries []entry
	seen := map[string]bool{}
	collectDirs := func(r browser.Row) error {
		if r.Name == "." || r.Name == ".." {
			return nil
		}
		trimmed := strings.TrimSuffix(r.Name, "/")
		if seen[trimmed] {
			return nil
		}
		seen[trimmed] = true
		entries = append(entries, entry{pathID: r.PathId, name: trimmed, isDir: true})
		return nil
	}
	fs.sess.SetHandler(collectDirs)
	fs.sess.SetOffset(0)
	for {
		full, err := fs.sess.LsDirs(fs.ctx)
		if err != nil {
			return nil, err
		}
		if !full {
			break
		}
		fs.sess.NextPage()
	}

	collectFiles := func(r browser.Row) error {
		if seen[r.Name] {
			return nil
		}
		seen[r.Name] = true
		entries = append(entries, entry{pathID: pathID, name: r.Name, isDir: false, lstat: r.LStat})
		return nil
	}
	fs.sess.SetHandler(collectFiles)
	fs.sess.SetOffset(0)
	for {
		full, err := fs.sess.LsFiles(fs.ctx)
		if err != nil {
			return nil, err
		}
		if !full {
			break
		}
		fs.sess.NextPage()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

// resolve walks path's components from the filesystem root, returning
// the matched entry. The synthetic root itself resolves to a directory
// entry with pathID == fs.rootID.
func (fs *SessionFS) resolve(path string) (entry, error) {
	components := splitComponents(path)
	cur := entry{pathID: fs.rootID, name: "/", isDir: true}
	if len(components) == 0 {
		return cur, nil
	}

	for _, name := range components {
		if !cur.isDir {
			return entry{}, os.ErrNotExist
		}
		children, err := fs.childrenOf(cur.pathID)
		if err != nil {
			return entry{}, err
		}
		found := false
		for _, c := range children {
			if c.name == name {
				cur = c
				found = true
				break
			}
		}
		if !found {
			return entry{}, os.ErrNotExist
		}
	}
	return cur, nil
}

func (fs *SessionFS) toFileInfo(e entry) os.FileInfo {
	mode := os.FileMode(0o444)
	if e.isDir {
		mode = os.ModeDir | 0o555
	}
	return &staticFileInfo{name: e.name, size: int64(len(e.lstat)), mode: mode, modTime: fs.mountTime}
}

// --- billy.Basic ---

func (fs *SessionFS) Create(filename string) (billy.File, error) { return nil, errReadOnly }

func (fs *SessionFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *SessionFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}
	e, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	if e.isDir {
		return nil, &os.PathError{Op: "open", Path: filename, Err: fmt.Errorf("is a directory")}
	}
	return newMarkerFile(filepath.Base(filename), []byte(e.lstat)), nil
}

func (fs *SessionFS) Stat(filename string) (os.FileInfo, error) { return fs.Lstat(filename) }

func (fs *SessionFS) Rename(oldpath, newpath string) error { return errReadOnly }

func (fs *SessionFS) Remove(filename string) error { return errReadOnly }

func (fs *SessionFS) Join(elem ...string) string { return filepath.Join(elem...) }

// --- billy.TempFile ---

func (fs *SessionFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *SessionFS) ReadDir(path string) ([]os.FileInfo, error) {
	e, err := fs.resolve(path)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: err}
	}
	if !e.isDir {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: fmt.Errorf("not a directory")}
	}
	children, err := fs.childrenOf(e.pathID)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: err}
	}
	infos := make([]os.FileInfo, 0, len(children))
	for _, c := range children {
		infos = append(infos, fs.toFileInfo(c))
	}
	return infos, nil
}

func (fs *SessionFS) MkdirAll(filename string, perm os.FileMode) error { return errReadOnly }

// --- billy.Symlink ---

func (fs *SessionFS) Lstat(filename string) (os.FileInfo, error) {
	e, err := fs.resolve(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: err}
	}
	return fs.toFileInfo(e), nil
}

func (fs *SessionFS) Symlink(target, link string) error    { return billy.ErrNotSupported }
func (fs *SessionFS) Readlink(link string) (string, error) { return "", billy.ErrNotSupported }

// --- billy.Chroot ---

func (fs *SessionFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *SessionFS) Root() string { return "/" }

// --- billy.Capable ---

func (fs *SessionFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*SessionFS)(nil)
	_ billy.Capable    = (*SessionFS)(nil)
	_ billy.File       = (*markerFile)(nil)
)
