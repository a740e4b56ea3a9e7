package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mmcdole/blobnav/internal/blobref"
	"github.com/mmcdole/blobnav/internal/domain"
)

type blob struct {
	ref  domain.Ref
	data []byte
}

func newBlob(data []byte) blob {
	return blob{ref: blobref.SHA224(data), data: data}
}

// upload sends blobs to the blob handler as one multipart request, each part
// named by its ref.
func (c *Client) upload(ctx context.Context, blobs ...blob) error {
	d, err := c.discover(ctx)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, b := range blobs {
		part, err := mw.CreateFormFile(string(b.ref), string(b.ref))
		if err != nil {
			return err
		}
		if _, err := part.Write(b.data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	data, err := c.doRequest(ctx, http.MethodPost, d.BlobRoot+"camli/upload", nil, mw.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	var resp uploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("upload: failed to parse response: %w", err)
	}

	received := make(map[domain.Ref]bool, len(resp.Received))
	for _, r := range resp.Received {
		received[r.BlobRef] = true
	}
	for _, b := range blobs {
		if !received[b.ref] {
			return fmt.Errorf("upload: server did not acknowledge %s", b.ref)
		}
	}
	return nil
}

// sign has the server's sign handler sign an unsigned schema blob.
func (c *Client) sign(ctx context.Context, sb *schemaBlob) (blob, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return blob{}, err
	}
	if d.Signing == nil || d.Signing.SignHandler == "" {
		return blob{}, fmt.Errorf("sign: server does not offer signing")
	}

	sb.Version = 1
	sb.Signer = string(d.Signing.PublicKeyBlobRef)
	unsigned, err := json.Marshal(sb)
	if err != nil {
		return blob{}, err
	}

	form := url.Values{"json": {string(unsigned)}}
	signed, err := c.doRequest(ctx, http.MethodPost, d.Signing.SignHandler, nil,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return blob{}, fmt.Errorf("sign %s: %w", sb.CamliType, err)
	}
	return newBlob(signed), nil
}

// UploadFile implements domain.Store. The file is sent as a single bytes
// blob followed by its file schema blob, whose ref is returned.
func (c *Client) UploadFile(ctx context.Context, f domain.File) (domain.Ref, error) {
	if f.Open == nil {
		return "", fmt.Errorf("upload %s: no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}

	content := newBlob(data)
	schema, err := json.MarshalIndent(&schemaBlob{
		Version:   1,
		CamliType: domain.CamliTypeFile,
		FileName:  f.Name,
		Parts:     []bytePart{{BlobRef: content.ref, Size: int64(len(data))}},
	}, "", "  ")
	if err != nil {
		return "", err
	}
	file := newBlob(schema)

	if err := c.upload(ctx, content, file); err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	c.logger.Debug("uploaded file", "name", f.Name, "ref", file.ref, "size", len(data))
	return file.ref, nil
}

// CreatePermanode implements domain.Store.
func (c *Client) CreatePermanode(ctx context.Context) (domain.Ref, error) {
	b, err := c.sign(ctx, &schemaBlob{
		CamliType: domain.CamliTypePermanode,
		Random:    ulid.Make().String(),
	})
	if err != nil {
		return "", fmt.Errorf("create permanode: %w", err)
	}
	if err := c.upload(ctx, b); err != nil {
		return "", fmt.Errorf("create permanode: %w", err)
	}
	return b.ref, nil
}

func (c *Client) SetAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return c.claim(ctx, &schemaBlob{ClaimType: claimSet, PermaNode: string(permanode), Attribute: name, Value: value})
}

func (c *Client) AddAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return c.claim(ctx, &schemaBlob{ClaimType: claimAdd, PermaNode: string(permanode), Attribute: name, Value: value})
}

func (c *Client) DelAttribute(ctx context.Context, permanode domain.Ref, name, value string) error {
	return c.claim(ctx, &schemaBlob{ClaimType: claimDel, PermaNode: string(permanode), Attribute: name, Value: value})
}

// Delete implements domain.Store with a delete claim targeting ref.
func (c *Client) Delete(ctx context.Context, ref domain.Ref) error {
	return c.claim(ctx, &schemaBlob{ClaimType: claimDelete, Target: string(ref)})
}

func (c *Client) claim(ctx context.Context, sb *schemaBlob) error {
	sb.CamliType = domain.CamliTypeClaim
	sb.ClaimDate = time.Now().UTC().Format(time.RFC3339Nano)

	b, err := c.sign(ctx, sb)
	if err != nil {
		return fmt.Errorf("%s: %w", sb.ClaimType, err)
	}
	if err := c.upload(ctx, b); err != nil {
		return fmt.Errorf("%s: %w", sb.ClaimType, err)
	}

	touched := sb.PermaNode
	if touched == "" {
		touched = sb.Target
	}
	c.describeCache.Delete(touched)
	c.logger.Debug("claim uploaded", "type", sb.ClaimType, "ref", touched, "claim", b.ref)
	return nil
}
