package browser

import (
	"fmt"
	"strings"

	"github.com/mmcdole/blobnav/internal/batch"
	"github.com/mmcdole/blobnav/internal/domain"
)

// Upload uploads the files at paths.
func (b *Browser) Upload(paths []string) error {
	files, err := batch.LocalFiles(paths)
	if err != nil {
		return err
	}
	b.UploadFiles(files, nil)
	return nil
}

// UploadFiles runs the upload pipeline for files. done may be nil.
func (b *Browser) UploadFiles(files []domain.File, done func([]batch.Outcome[batch.UploadResult])) {
	b.orch.Upload(files, func(out []batch.Outcome[batch.UploadResult]) {
		failed := len(batch.Failed(out))
		if failed > 0 {
			b.notice = fmt.Sprintf("uploaded %d files, %d failed", len(out)-failed, failed)
		} else if len(out) > 0 {
			b.notice = fmt.Sprintf("uploaded %d files", len(out))
		}
		b.changed()
		if done != nil {
			done(out)
		}
	})
	b.changed()
}

// UploadText is the progress line shown while uploading.
func UploadText(p domain.UploadProgress) string {
	if !p.Active() {
		return ""
	}
	return fmt.Sprintf("Uploading (%d of %d)...", p.Complete, p.Total)
}

// PastedPaths extracts file paths from pasted text: one per line, optionally
// quoted or file:// prefixed, as terminals produce for dropped files.
func PastedPaths(text string) []string {
	var paths []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		p := strings.TrimSpace(line)
		p = strings.Trim(p, `'"`)
		p = strings.TrimPrefix(p, "file://")
		p = strings.ReplaceAll(p, `\ `, " ")
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
