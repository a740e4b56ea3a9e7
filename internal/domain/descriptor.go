package domain

import (
	"strings"
	"time"
)

// Ref is an opaque content address ("sha224-<hex>"). It identifies at most
// one blob in the store.
type Ref string

func (r Ref) String() string { return string(r) }

// Valid reports whether the ref is non-empty.
func (r Ref) Valid() bool { return r != "" }

// Blob type names as they appear in schema blobs
const (
	CamliTypePermanode = "permanode"
	CamliTypeFile      = "file"
	CamliTypeDirectory = "directory"
	CamliTypeClaim     = "claim"
	CamliTypeBytes     = "bytes"
)

// Well-known permanode attributes
const (
	AttrContent = "camliContent"
	AttrMember  = "camliMember"
	AttrTitle   = "title"
	AttrTag     = "tag"
	AttrRoot    = "camliRoot"
	AttrPathPfx = "camliPath:"
)

// Descriptor is the metadata a store returns for one blob.
type Descriptor struct {
	BlobRef   Ref            `json:"blobRef"`
	CamliType string         `json:"camliType,omitempty"`
	Size      int64          `json:"size"`
	Permanode *PermanodeDesc `json:"permanode,omitempty"`
	File      *FileDesc      `json:"file,omitempty"`
	Image     *ImageDesc     `json:"image,omitempty"`
	Dir       *DirDesc       `json:"dir,omitempty"`
}

// PermanodeDesc holds the folded attribute state of a permanode
type PermanodeDesc struct {
	Attr    map[string][]string `json:"attr"`
	ModTime time.Time           `json:"modtime,omitempty"`
}

// FileDesc describes a file schema blob
type FileDesc struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType,omitempty"`
}

// ImageDesc carries decoded image dimensions
type ImageDesc struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DirDesc describes a directory schema blob
type DirDesc struct {
	FileName string `json:"fileName"`
}

// Get returns the first value of an attribute.
func (p *PermanodeDesc) Get(name string) string {
	if p == nil {
		return ""
	}
	if vals := p.Attr[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// IsContainer reports whether the permanode can hold members.
func (p *PermanodeDesc) IsContainer() bool {
	if p == nil {
		return false
	}
	for name := range p.Attr {
		if name == AttrMember || strings.HasPrefix(name, AttrPathPfx) {
			return true
		}
	}
	return false
}

// IsPermanode reports whether the descriptor is a permanode.
func (d *Descriptor) IsPermanode() bool {
	return d != nil && d.Permanode != nil
}

// Title returns a display title: permanode title, file or directory name, or the ref.
func (d *Descriptor) Title() string {
	if d == nil {
		return ""
	}
	if t := d.Permanode.Get(AttrTitle); t != "" {
		return t
	}
	if d.File != nil && d.File.FileName != "" {
		return d.File.FileName
	}
	if d.Dir != nil && d.Dir.FileName != "" {
		return d.Dir.FileName
	}
	return string(d.BlobRef)
}

// ContentRef returns the camliContent of a permanode, if any.
func (d *Descriptor) ContentRef() (Ref, bool) {
	if !d.IsPermanode() {
		return "", false
	}
	c := d.Permanode.Get(AttrContent)
	return Ref(c), c != ""
}

// SearchResult is one page of a query's live result set.
type SearchResult struct {
	Blobs       []Ref
	Description map[Ref]*Descriptor
	Continue    string // empty when there are no more pages
}

// StatusError is one entry of the server status error list
type StatusError struct {
	Error string `json:"error"`
	URL   string `json:"url,omitempty"`
}

// ServerStatus is the process-wide status pushed by subscriptions.
type ServerStatus struct {
	Version string        `json:"version,omitempty"`
	Errors  []StatusError `json:"errors,omitempty"`
}
