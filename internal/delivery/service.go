package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"audio-delivery/internal/cache"
	"audio-delivery/internal/limiter"
	"audio-delivery/internal/platform/logger"
	"audio-delivery/internal/platform/metrics"
)

// etagHeadBytes is how much of the file goes into its entity tag.
const etagHeadBytes = 64 << 10

// Service resolves tracks and streams them under the limiter's caps.
type Service struct {
	catalog  Catalog
	streamer *Streamer
	limiter  *limiter.Limiter
	etags    *cache.ETagCache
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires the delivery path. etags and m may be nil.
func NewService(catalog Catalog, streamer *Streamer, lim *limiter.Limiter, etags *cache.ETagCache, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		catalog:  catalog,
		streamer: streamer,
		limiter:  lim,
		etags:    etags,
		log:      log,
		metrics:  m,
	}
}

// Prepare resolves req to a descriptor, the status it will be answered with
// and its entity tag. An unsatisfiable range is not an error here; it comes
// back as Status 416.
func (s *Service) Prepare(ctx context.Context, req Request) (Prepared, error) {
	info, err := s.catalog.Resolve(ctx, req.TrackID)
	if err != nil {
		return Prepared{}, err
	}

	d, err := NewDescriptor(info, req.RangeHeader, req.Download, nil)
	status := d.StatusCode()
	switch {
	case errors.Is(err, ErrInvalidRange):
		status = http.StatusRequestedRangeNotSatisfiable
	case err != nil:
		return Prepared{}, err
	}

	etag, err := s.entityTag(info)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{Descriptor: d, Status: status, ETag: etag, Head: req.Head}, nil
}

// Deliver writes the prepared response to w. A limiter slot is taken before
// anything is written; when none is free the error matches
// ErrAdmissionRejected and w is untouched. The slot is released on every
// return path.
func (s *Service) Deliver(ctx context.Context, p Prepared, userKey string, w http.ResponseWriter) (int64, error) {
	d := p.Descriptor
	if p.Status == http.StatusRequestedRangeNotSatisfiable {
		ApplyHeaders(w.Header(), BuildHeaders(d, p.Status))
		w.WriteHeader(p.Status)
		s.metrics.IncResponseStatus(p.Status)
		return 0, nil
	}

	release, err := s.limiter.Acquire(userKey)
	if err != nil {
		scope := "global"
		if errors.Is(err, limiter.ErrUserLimit) {
			scope = "user"
		}
		s.metrics.IncAdmissionRejected(scope)
		s.log.Warn("stream rejected",
			slog.String("request_id", logger.RequestID(ctx)),
			slog.String("user", userKey),
			slog.String("scope", scope))
		return 0, errors.Join(ErrAdmissionRejected, err)
	}
	defer release()

	headers := BuildHeaders(d, p.Status)
	if p.ETag != "" {
		headers["ETag"] = p.ETag
	}
	ApplyHeaders(w.Header(), headers)
	w.WriteHeader(p.Status)
	s.metrics.IncResponseStatus(p.Status)
	if p.Head {
		return 0, nil
	}

	written, err := s.streamer.Stream(ctx, d, w)
	s.observe(ctx, d, userKey, written, err)
	return written, err
}

func (s *Service) observe(ctx context.Context, d Descriptor, userKey string, written int64, err error) {
	attrs := []any{
		slog.String("request_id", logger.RequestID(ctx)),
		slog.String("user", userKey),
		slog.String("path", d.SourcePath),
		slog.Int64("offset", d.Offset()),
		slog.Int64("length", d.ContentLength()),
		slog.Int64("written", written),
	}
	switch {
	case err == nil:
		s.metrics.ObserveStream(metrics.OutcomeCompleted, written)
		s.log.Debug("stream completed", attrs...)
	case errors.Is(err, ErrCancelled):
		s.metrics.ObserveStream(metrics.OutcomeCancelled, written)
		s.log.Debug("stream cancelled", attrs...)
	case errors.Is(err, ErrTruncatedSource):
		s.metrics.ObserveStream(metrics.OutcomeTruncated, written)
		s.log.Error("stream truncated", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.metrics.ObserveStream(metrics.OutcomeFailed, written)
		s.metrics.IncErrors()
		s.log.Error("stream failed", append(attrs, slog.String("error", err.Error()))...)
	}
}

// entityTag returns the cached tag for info, computing it from the file's
// identity and the SHA-256 of its head on a miss.
func (s *Service) entityTag(info FileInfo) (string, error) {
	key := info.Path + ":" + strconv.FormatInt(info.Size, 10) + ":" + strconv.FormatInt(info.ModTime.UnixNano(), 10)
	if s.etags != nil {
		if tag, ok := s.etags.Get(key); ok {
			s.metrics.IncCacheLookup("etag", true)
			return tag, nil
		}
		s.metrics.IncCacheLookup("etag", false)
	}

	f, err := s.streamer.fs.Open(info.Path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, info.Path, err)
	}
	defer f.Close()

	h := sha256.New()
	io.WriteString(h, key)
	if _, err := io.Copy(h, io.LimitReader(f, etagHeadBytes)); err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, info.Path, err)
	}
	tag := `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
	if s.etags != nil {
		s.etags.Put(key, tag)
	}
	return tag, nil
}
