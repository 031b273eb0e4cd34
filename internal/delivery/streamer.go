package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/afero"
)

const (
	DefaultChunkSize = 128 << 10
	MinChunkSize     = 4 << 10
	MaxChunkSize     = 4 << 20
)

// Streamer copies a descriptor's byte span from storage to a sink in fixed
// size chunks. At most one chunk per stream is held in memory, and chunk
// buffers are shared between streams through a pool.
type Streamer struct {
	fs        afero.Fs
	chunkSize int
	pool      sync.Pool
}

// NewStreamer returns a Streamer reading from fs. chunkSize <= 0 selects
// DefaultChunkSize; other values are clamped to [MinChunkSize, MaxChunkSize].
func NewStreamer(fs afero.Fs, chunkSize int) *Streamer {
	switch {
	case chunkSize <= 0:
		chunkSize = DefaultChunkSize
	case chunkSize < MinChunkSize:
		chunkSize = MinChunkSize
	case chunkSize > MaxChunkSize:
		chunkSize = MaxChunkSize
	}
	s := &Streamer{fs: fs, chunkSize: chunkSize}
	s.pool.New = func() any {
		b := make([]byte, s.chunkSize)
		return &b
	}
	return s
}

// ChunkSize returns the effective chunk size.
func (s *Streamer) ChunkSize() int { return s.chunkSize }

// Stream writes exactly d.ContentLength() bytes starting at d.Offset() to w.
// ctx is checked before every read and after every write. The returned
// count is what reached w, also on error. Errors match ErrCancelled,
// ErrTruncatedSource, ErrSourceUnavailable or ErrSinkWrite.
func (s *Streamer) Stream(ctx context.Context, d Descriptor, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	f, err := s.fs.Open(d.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, d.SourcePath, err)
	}
	defer f.Close()

	if off := d.Offset(); off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			return 0, fmt.Errorf("%w: seek %s to %d: %w", ErrSourceUnavailable, d.SourcePath, off, err)
		}
	}

	bp := s.pool.Get().(*[]byte)
	defer s.pool.Put(bp)
	buf := *bp

	remaining := d.ContentLength()
	var written int64
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		chunk := buf
		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		n, rerr := io.ReadFull(f, chunk)
		if n > 0 {
			m, werr := w.Write(chunk[:n])
			written += int64(m)
			remaining -= int64(m)
			if werr == nil && m < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				if cerr := ctx.Err(); cerr != nil {
					return written, fmt.Errorf("%w: %w", ErrCancelled, cerr)
				}
				return written, fmt.Errorf("%w: %w", ErrSinkWrite, werr)
			}
			if err := ctx.Err(); err != nil && remaining > 0 {
				return written, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF):
			return written, fmt.Errorf("%w: %s: %d of %d bytes", ErrTruncatedSource, d.SourcePath, written, d.ContentLength())
		default:
			return written, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, d.SourcePath, rerr)
		}
	}
	return written, nil
}
