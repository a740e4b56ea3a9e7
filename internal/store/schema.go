package store

import (
	"encoding/json"
	"time"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Claim types
const (
	claimSet    = "set-attribute"
	claimAdd    = "add-attribute"
	claimDel    = "del-attribute"
	claimDelete = "delete"
)

// schemaBlob is the union of the JSON schema blob kinds the store writes.
type schemaBlob struct {
	Version   int    `json:"camliVersion"`
	CamliType string `json:"camliType"`

	// permanode
	Random string `json:"random,omitempty"`

	// file, directory
	FileName string     `json:"fileName,omitempty"`
	Size     int64      `json:"size,omitempty"`
	Parts    []bytePart `json:"parts,omitempty"`

	// claim
	PermaNode string    `json:"permaNode,omitempty"`
	ClaimType string    `json:"claimType,omitempty"`
	ClaimDate time.Time `json:"claimDate,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
	Value     string    `json:"value,omitempty"`
	Target    string    `json:"target,omitempty"`
}

type bytePart struct {
	BlobRef domain.Ref `json:"blobRef"`
	Size    int64      `json:"size"`
}

// parseSchema decodes a schema blob. Blobs that are not JSON objects with a
// camliType are plain data.
func parseSchema(data []byte) (*schemaBlob, bool) {
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var sb schemaBlob
	if err := json.Unmarshal(data, &sb); err != nil || sb.CamliType == "" {
		return nil, false
	}
	return &sb, true
}

func (sb *schemaBlob) marshal() ([]byte, error) {
	sb.Version = 1
	return json.MarshalIndent(sb, "", "  ")
}
