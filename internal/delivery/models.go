package delivery

import (
	"strconv"
	"time"
)

// RangeSpec is an inclusive, validated byte span: 0 <= Start <= End <= size-1.
type RangeSpec struct {
	Start int64
	End   int64
}

// Length is the number of bytes the span covers.
func (r RangeSpec) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the 206 Content-Range value for a resource of size bytes.
func (r RangeSpec) ContentRange(size int64) string {
	return "bytes " + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10) + "/" + strconv.FormatInt(size, 10)
}

// FileInfo is what the catalog knows about a track's file.
type FileInfo struct {
	Path        string
	Size        int64
	ContentType string
	FileName    string
	ModTime     time.Time
}

// Descriptor carries everything needed to answer one request. It is built
// once by NewDescriptor and not modified afterwards.
type Descriptor struct {
	SourcePath   string
	FileSize     int64
	ContentType  string
	FileName     string
	Range        *RangeSpec
	IsDownload   bool
	ExtraHeaders map[string]string
}

// Request is a resolve-and-stream call as seen from the HTTP boundary.
type Request struct {
	TrackID     string
	RangeHeader string
	Download    bool
	Head        bool
}

// Prepared is the outcome of Service.Prepare: the descriptor, the status it
// will be answered with and the entity tag of the file.
type Prepared struct {
	Descriptor Descriptor
	Status     int
	ETag       string
	Head       bool
}
