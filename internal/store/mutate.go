package store

import (
	"context"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"

	"github.com/mmcdole/blobnav/internal/blobref"
	"github.com/mmcdole/blobnav/internal/domain"
)

// Put stores raw data and returns its ref. Storing existing data is a no-op.
func (s *BlobStore) Put(data []byte) (domain.Ref, error) {
	ref := blobref.SHA224(data)
	if s.has(bucketBlobs, string(ref)) {
		return ref, nil
	}
	if err := s.put(bucketBlobs, string(ref), data); err != nil {
		return "", fmt.Errorf("put %s: %w", ref, err)
	}
	return ref, nil
}

func (s *BlobStore) putSchema(sb *schemaBlob) (domain.Ref, []byte, error) {
	data, err := sb.marshal()
	if err != nil {
		return "", nil, err
	}
	ref, err := s.Put(data)
	return ref, data, err
}

// UploadFile stores the file's bytes and a file schema blob pointing at
// them, and returns the schema's ref.
func (s *BlobStore) UploadFile(ctx context.Context, f domain.File) (domain.Ref, error) {
	if f.Open == nil {
		return "", fmt.Errorf("upload %s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	part, err := s.Put(data)
	if err != nil {
		return "", err
	}
	ref, _, err := s.putSchema(&schemaBlob{
		CamliType: domain.CamliTypeFile,
		FileName:  f.Name,
		Size:      int64(len(data)),
		Parts:     []bytePart{{BlobRef: part, Size: int64(len(data))}},
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("uploaded file", "name", f.Name, "ref", ref, "size", len(data))
	s.notify()
	return ref, nil
}

// CreatePermanode stores a new permanode with a random nonce.
func (s *BlobStore) CreatePermanode(ctx context.Context) (domain.Ref, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, _, err := s.putSchema(&schemaBlob{
		CamliType: domain.CamliTypePermanode,
		Random:    ulid.Make().String(),
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("created permanode", "ref", ref)
	s.notify()
	return ref, nil
}

func (s *BlobStore) SetAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return s.claim(ctx, permanode, claimSet, name, value)
}

func (s *BlobStore) AddAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return s.claim(ctx, permanode, claimAdd, name, value)
}

// DelAttribute removes value from the attribute, or the whole attribute when
// value is empty.
func (s *BlobStore) DelAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return s.claim(ctx, permanode, claimDel, name, value)
}

func (s *BlobStore) claim(ctx context.Context, permanode domain.Ref, claimType, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := s.describe(permanode)
	if !ok {
		return fmt.Errorf("%s %s on %s: %w", claimType, name, permanode, domain.ErrNotFound)
	}
	if d.CamliType != domain.CamliTypePermanode {
		return fmt.Errorf("%s %s on %s: %w", claimType, name, permanode, domain.ErrNotPermanode)
	}

	_, data, err := s.putSchema(&schemaBlob{
		CamliType: domain.CamliTypeClaim,
		PermaNode: string(permanode),
		ClaimType: claimType,
		ClaimDate: s.now().UTC(),
		Attribute: name,
		Value:     value,
	})
	if err != nil {
		return err
	}
	// ULIDs sort by creation time, so a prefix scan yields claims in order.
	key := claimPrefix(permanode) + ulid.Make().String()
	if err := s.put(bucketClaims, key, data); err != nil {
		return fmt.Errorf("index claim: %w", err)
	}
	s.notify()
	return nil
}

// Delete records a delete claim for ref; the blob disappears from describes
// and searches.
func (s *BlobStore) Delete(ctx context.Context, ref domain.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.has(bucketBlobs, string(ref)) {
		return fmt.Errorf("delete %s: %w", ref, domain.ErrNotFound)
	}
	if _, _, err := s.putSchema(&schemaBlob{
		CamliType: domain.CamliTypeClaim,
		ClaimType: claimDelete,
		ClaimDate: s.now().UTC(),
		Target:    string(ref),
	}); err != nil {
		return err
	}
	if err := s.put(bucketDeleted, string(ref), []byte{1}); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	s.logger.Debug("deleted", "ref", ref)
	s.notify()
	return nil
}

var _ domain.Store = (*BlobStore)(nil)
