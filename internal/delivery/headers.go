package delivery

import (
	"mime"
	"net/http"
	"strconv"
)

const acceptRangesBytes = "bytes"

// BuildHeaders returns the headers owned by the delivery core for a response
// with the given status (200, 206 or 416).
func BuildHeaders(d Descriptor, status int) map[string]string {
	h := make(map[string]string, 6+len(d.ExtraHeaders))
	for k, v := range d.ExtraHeaders {
		h[k] = v
	}

	size := strconv.FormatInt(d.FileSize, 10)
	switch {
	case status == http.StatusRequestedRangeNotSatisfiable:
		h["Content-Range"] = "bytes */" + size
		return h
	case status == http.StatusPartialContent && d.Range != nil:
		h["Content-Length"] = strconv.FormatInt(d.Range.Length(), 10)
		h["Content-Range"] = d.Range.ContentRange(d.FileSize)
	default:
		h["Content-Length"] = size
	}
	h["Accept-Ranges"] = acceptRangesBytes
	if d.ContentType != "" {
		h["Content-Type"] = d.ContentType
	}
	if d.IsDownload {
		h["Content-Disposition"] = contentDisposition(d.FileName)
	}
	return h
}

// ApplyHeaders sets each header on dst. Headers not in the map are left alone.
func ApplyHeaders(dst http.Header, headers map[string]string) {
	for k, v := range headers {
		dst.Set(k, v)
	}
}

func contentDisposition(name string) string {
	if name == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
