package delivery

import (
	"maps"
	"net/http"
)

// NewDescriptor resolves rangeHeader against info and returns the descriptor
// for one response. extra is copied. On ErrInvalidRange the returned
// descriptor still carries the file size so a 416 can be built from it.
func NewDescriptor(info FileInfo, rangeHeader string, download bool, extra map[string]string) (Descriptor, error) {
	d := Descriptor{
		SourcePath:  info.Path,
		FileSize:    info.Size,
		ContentType: info.ContentType,
		FileName:    info.FileName,
		IsDownload:  download,
	}
	if len(extra) > 0 {
		d.ExtraHeaders = maps.Clone(extra)
	}

	r, err := ParseRange(rangeHeader, info.Size)
	if err != nil {
		return d, err
	}
	d.Range = r
	return d, nil
}

// StatusCode is 206 for a ranged descriptor and 200 otherwise.
func (d Descriptor) StatusCode() int {
	if d.Range != nil {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// ContentLength is the exact number of body bytes the response will carry.
func (d Descriptor) ContentLength() int64 {
	if d.Range != nil {
		return d.Range.Length()
	}
	return d.FileSize
}

// Offset is the first byte of the source to send.
func (d Descriptor) Offset() int64 {
	if d.Range != nil {
		return d.Range.Start
	}
	return 0
}
