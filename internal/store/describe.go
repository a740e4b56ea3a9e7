package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"slices"
	"strings"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Describe returns the metadata of one blob. Permanode attributes are the
// fold of their claims in claim order.
func (s *BlobStore) Describe(ctx context.Context, ref domain.Ref) (*domain.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := s.describe(ref)
	if !ok {
		return nil, fmt.Errorf("describe %s: %w", ref, domain.ErrNotFound)
	}
	return d, nil
}

func (s *BlobStore) describe(ref domain.Ref) (*domain.Descriptor, bool) {
	if s.has(bucketDeleted, string(ref)) {
		return nil, false
	}
	data, ok := s.get(bucketBlobs, string(ref))
	if !ok {
		return nil, false
	}

	d := &domain.Descriptor{BlobRef: ref, Size: int64(len(data))}
	sb, ok := parseSchema(data)
	if !ok {
		return d, true
	}
	d.CamliType = sb.CamliType

	switch sb.CamliType {
	case domain.CamliTypePermanode:
		d.Permanode = fold(s.claims(ref))
	case domain.CamliTypeFile:
		d.File = &domain.FileDesc{FileName: sb.FileName, Size: sb.Size}
		s.inspect(d, sb)
	case domain.CamliTypeDirectory:
		d.Dir = &domain.DirDesc{FileName: sb.FileName}
	}
	return d, true
}

// claims returns the claims on permanode in the order they were made.
func (s *BlobStore) claims(permanode domain.Ref) []*schemaBlob {
	var out []*schemaBlob
	for _, e := range s.scan(bucketClaims, claimPrefix(permanode)) {
		var c schemaBlob
		if err := json.Unmarshal(e.value, &c); err != nil {
			s.logger.Warn("skipping unreadable claim", "key", e.key, "error", err)
			continue
		}
		out = append(out, &c)
	}
	return out
}

func claimPrefix(permanode domain.Ref) string {
	return string(permanode) + "/"
}

// fold applies claims to an empty attribute set.
func fold(claims []*schemaBlob) *domain.PermanodeDesc {
	p := &domain.PermanodeDesc{Attr: make(map[string][]string)}
	for _, c := range claims {
		switch c.ClaimType {
		case claimSet:
			p.Attr[c.Attribute] = []string{c.Value}
		case claimAdd:
			if !slices.Contains(p.Attr[c.Attribute], c.Value) {
				p.Attr[c.Attribute] = append(p.Attr[c.Attribute], c.Value)
			}
		case claimDel:
			if c.Value == "" {
				delete(p.Attr, c.Attribute)
				break
			}
			vals := slices.DeleteFunc(p.Attr[c.Attribute], func(v string) bool { return v == c.Value })
			if len(vals) == 0 {
				delete(p.Attr, c.Attribute)
			} else {
				p.Attr[c.Attribute] = vals
			}
		default:
			continue
		}
		if c.ClaimDate.After(p.ModTime) {
			p.ModTime = c.ClaimDate
		}
	}
	return p
}

// inspect sniffs a file's content type and, for images, its dimensions.
func (s *BlobStore) inspect(d *domain.Descriptor, sb *schemaBlob) {
	var content []byte
	for _, part := range sb.Parts {
		data, ok := s.get(bucketBlobs, string(part.BlobRef))
		if !ok {
			return
		}
		content = append(content, data...)
	}
	d.File.MIMEType = http.DetectContentType(content)
	if !strings.HasPrefix(d.File.MIMEType, "image/") {
		return
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		s.logger.Debug("image header unreadable", "ref", d.BlobRef, "error", err)
		return
	}
	d.Image = &domain.ImageDesc{Width: cfg.Width, Height: cfg.Height}
}
