package delivery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

const defaultContentType = "application/octet-stream"

// Catalog resolves a track id to the file that holds its audio.
// Implementations return ErrTrackNotFound for unknown ids.
type Catalog interface {
	Resolve(ctx context.Context, trackID string) (FileInfo, error)
}

// MemoryCatalog is a Catalog backed by a map. Safe for concurrent use.
type MemoryCatalog struct {
	mu     sync.RWMutex
	tracks map[string]FileInfo
}

// NewMemoryCatalog returns an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{tracks: make(map[string]FileInfo)}
}

// Register adds or replaces the file for trackID.
func (c *MemoryCatalog) Register(trackID string, info FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks[trackID] = info
}

// Remove forgets trackID.
func (c *MemoryCatalog) Remove(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, trackID)
}

// Resolve implements Catalog.
func (c *MemoryCatalog) Resolve(_ context.Context, trackID string) (FileInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tracks[trackID]
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrTrackNotFound, trackID)
	}
	return info, nil
}

// DirCatalog resolves track ids as slash separated paths relative to the
// root of fs. Wrap an OS filesystem in afero.NewBasePathFs to pin the
// library directory.
type DirCatalog struct {
	fs afero.Fs
}

// NewDirCatalog returns a catalog over fs.
func NewDirCatalog(fs afero.Fs) *DirCatalog {
	return &DirCatalog{fs: fs}
}

// Resolve implements Catalog. Ids that escape the root are reported as not found.
func (c *DirCatalog) Resolve(ctx context.Context, trackID string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	p, ok := cleanTrackPath(trackID)
	if !ok {
		return FileInfo{}, fmt.Errorf("%w: %q", ErrTrackNotFound, trackID)
	}

	st, err := c.fs.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return FileInfo{}, fmt.Errorf("%w: %q", ErrTrackNotFound, trackID)
	case err != nil:
		return FileInfo{}, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, p, err)
	case st.IsDir():
		return FileInfo{}, fmt.Errorf("%w: %q is a directory", ErrTrackNotFound, trackID)
	}

	ct, err := c.contentType(p)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:        p,
		Size:        st.Size(),
		ContentType: ct,
		FileName:    path.Base(p),
		ModTime:     st.ModTime(),
	}, nil
}

// contentType trusts a known extension and sniffs the file head otherwise.
func (c *DirCatalog) contentType(p string) (string, error) {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct, nil
	}
	f, err := c.fs.Open(p)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, p, err)
	}
	defer f.Close()

	m, err := mimetype.DetectReader(f)
	if err != nil || m == nil {
		return defaultContentType, nil
	}
	return m.String(), nil
}

func cleanTrackPath(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "\\") || strings.ContainsRune(id, 0) {
		return "", false
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == ".." {
			return "", false
		}
	}
	p := path.Clean("/" + id)
	if p == "/" {
		return "", false
	}
	return p, true
}
