package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc"

	"github.com/mmcdole/blobnav/internal/domain"
)

// UploadResult is the outcome of one file's pipeline.
type UploadResult struct {
	File      domain.File
	Permanode domain.Ref
	Content   domain.Ref
}

// Upload runs the per-file pipeline for every file: the blob upload and the
// permanode creation run concurrently, then the permanode's camliContent is
// pointed at the blob. A failing file is logged and counted as settled
// without affecting the others. Progress resets to idle once every file has
// settled, after which done (if non-nil) receives the results.
func (o *Orchestrator) Upload(files []domain.File, done func([]Outcome[UploadResult])) {
	if len(files) == 0 {
		if done != nil {
			o.poster.Post(func() { done(nil) })
		}
		return
	}
	o.setProgress(domain.UploadProgress{Total: o.progress.Total + len(files), Complete: o.progress.Complete})

	results := make([]UploadResult, len(files))
	items := make([]int, len(files))
	for i := range items {
		items[i] = i
	}

	Gather(context.Background(), o.poster, items, Options{MaxConcurrency: o.concurrency},
		func(ctx context.Context, i int) error {
			res, err := o.uploadOne(ctx, files[i])
			results[i] = res
			return err
		},
		func(out Outcome[int]) {
			if out.Err != nil {
				o.logger.Error("upload failed", "file", files[out.Item].Name, "error", out.Err)
			} else {
				o.logger.Debug("uploaded", "file", files[out.Item].Name, "permanode", results[out.Item].Permanode)
			}
			o.setProgress(domain.UploadProgress{Total: o.progress.Total, Complete: o.progress.Complete + 1})
		},
		func(outcomes []Outcome[int]) {
			if o.progress.Complete >= o.progress.Total {
				o.logger.Debug("all uploads complete", "count", o.progress.Total)
				o.setProgress(domain.UploadProgress{})
			}
			if o.refresher != nil {
				o.refresher.RefreshSessions()
			}
			if done != nil {
				out := make([]Outcome[UploadResult], len(outcomes))
				for i, oc := range outcomes {
					out[i] = Outcome[UploadResult]{Item: results[oc.Item], Err: oc.Err}
				}
				done(out)
			}
		},
	)
}

func (o *Orchestrator) uploadOne(ctx context.Context, f domain.File) (UploadResult, error) {
	res := UploadResult{File: f}
	var upErr, createErr error

	var wg conc.WaitGroup
	wg.Go(func() { res.Content, upErr = o.store.UploadFile(ctx, f) })
	wg.Go(func() { res.Permanode, createErr = o.store.CreatePermanode(ctx) })
	wg.Wait()

	if upErr != nil {
		return res, fmt.Errorf("upload %s: %w", f.Name, upErr)
	}
	if createErr != nil {
		return res, fmt.Errorf("create permanode for %s: %w", f.Name, createErr)
	}
	if err := o.store.SetAttribute(ctx, res.Permanode, domain.AttrContent, string(res.Content)); err != nil {
		return res, fmt.Errorf("link %s: %w", f.Name, err)
	}
	return res, nil
}

func (o *Orchestrator) setProgress(p domain.UploadProgress) {
	o.progress = p
	o.observer.OnUploadProgress(p)
}

// LocalFiles turns paths into upload sources backed by the filesystem.
func LocalFiles(paths []string) ([]domain.File, error) {
	files := make([]domain.File, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		path := p
		files = append(files, domain.File{
			Name: filepath.Base(p),
			Size: info.Size(),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return files, nil
}
