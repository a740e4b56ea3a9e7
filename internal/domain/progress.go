package domain

// UploadProgress reports how many files of an upload batch have settled.
// The zero value means no upload is in flight.
type UploadProgress struct {
	Total    int
	Complete int
}

// Active reports whether an upload batch is in flight.
func (p UploadProgress) Active() bool {
	return p.Total > 0
}

// ProgressObserver receives upload progress updates.
type ProgressObserver interface {
	OnUploadProgress(progress UploadProgress)
}

// NoOpObserver discards progress updates.
type NoOpObserver struct{}

func (NoOpObserver) OnUploadProgress(UploadProgress) {}
