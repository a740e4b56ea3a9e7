package remote

import (
	"github.com/mmcdole/blobnav/internal/domain"
)

// discovery is the server's self-description, served from the UI root
// with camli.mode=config.
type discovery struct {
	SearchRoot string   `json:"searchRoot"`
	BlobRoot   string   `json:"blobRoot"`
	StatusRoot string   `json:"statusRoot"`
	Signing    *signing `json:"signing,omitempty"`
}

type signing struct {
	PublicKeyBlobRef domain.Ref `json:"publicKeyBlobRef"`
	SignHandler      string     `json:"signHandler"`
}

// searchRequest is a query as the search handler expects it.
type searchRequest struct {
	domain.Query
	Continue string `json:"continue,omitempty"`
}

type searchBlob struct {
	Blob domain.Ref `json:"blob"`
}

type describeResponse struct {
	Meta map[domain.Ref]*domain.Descriptor `json:"meta"`
}

type searchResponse struct {
	Blobs       []searchBlob      `json:"blobs"`
	Description *describeResponse `json:"description,omitempty"`
	Continue    string            `json:"continue,omitempty"`
}

func (r *searchResponse) toDomain() *domain.SearchResult {
	res := &domain.SearchResult{
		Blobs:    make([]domain.Ref, 0, len(r.Blobs)),
		Continue: r.Continue,
	}
	for _, b := range r.Blobs {
		res.Blobs = append(res.Blobs, b.Blob)
	}
	if r.Description != nil {
		res.Description = r.Description.Meta
	}
	return res
}

// wsRequest and wsResponse are the search websocket frames. The tag pairs a
// response with the query that produced it.
type wsRequest struct {
	Tag   string        `json:"tag"`
	Query searchRequest `json:"query"`
}

type wsResponse struct {
	Tag    string          `json:"tag"`
	Result *searchResponse `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Claim types
const (
	claimSet    = "set-attribute"
	claimAdd    = "add-attribute"
	claimDel    = "del-attribute"
	claimDelete = "delete"
)

// schemaBlob is the union of the unsigned schema blobs the client builds.
type schemaBlob struct {
	Version   int    `json:"camliVersion"`
	CamliType string `json:"camliType"`
	Signer    string `json:"camliSigner,omitempty"`

	Random string `json:"random,omitempty"`

	FileName string     `json:"fileName,omitempty"`
	Parts    []bytePart `json:"parts,omitempty"`

	PermaNode string `json:"permaNode,omitempty"`
	ClaimType string `json:"claimType,omitempty"`
	ClaimDate string `json:"claimDate,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Value     string `json:"value,omitempty"`
	Target    string `json:"target,omitempty"`
}

type bytePart struct {
	BlobRef domain.Ref `json:"blobRef"`
	Size    int64      `json:"size"`
}

type uploadResponse struct {
	Received []struct {
		BlobRef domain.Ref `json:"blobRef"`
		Size    int64      `json:"size"`
	} `json:"received"`
}
