package aspect

import (
	"github.com/mmcdole/blobnav/internal/domain"
)

// DefaultSources returns the built-in registry in priority order.
func DefaultSources() []Source {
	return []Source{
		SourceFunc(Search),
		SourceFunc(Image),
		SourceFunc(Permanode),
		SourceFunc(Directory),
		SourceFunc(Blob),
	}
}

// Search offers the result listing: "Search" without a target, "Contents"
// for a container permanode. It declines for a target that is not a
// permanode, for one whose metadata is not known yet, for a permanode that is
// not a container, and whenever there is no child session.
func Search(in Input) (Aspect, bool) {
	title, fragment := "Search", "search"
	if in.Target.Valid() {
		m, ok := in.TargetMeta()
		if !ok || !m.IsPermanode() {
			return Aspect{}, false
		}
		// An empty set is indistinguishable from a permanode that will never
		// have members, so both are hidden.
		if !m.Permanode.IsContainer() {
			return Aspect{}, false
		}
		title, fragment = "Contents", "contents"
	}
	if in.ChildSession == nil {
		return Aspect{}, false
	}

	s := in.ChildSession
	return Aspect{
		Title:    title,
		Fragment: fragment,
		Content: func(size Size, t Transition) Content {
			return &Results{Session: s, Size: size, Transition: t}
		},
	}, true
}

// Image offers an image view when the target, or the content of a target
// permanode, carries image dimensions.
func Image(in Input) (Aspect, bool) {
	m, ok := in.TargetMeta()
	if !ok {
		return Aspect{}, false
	}
	img := m
	if m.IsPermanode() {
		if img, ok = in.contentMeta(m); !ok {
			return Aspect{}, false
		}
	}
	if img.Image == nil {
		return Aspect{}, false
	}
	return detailAspect("Image", "image", in.Target, imageFields(m, img)), true
}

// Permanode offers the attribute view for permanodes.
func Permanode(in Input) (Aspect, bool) {
	m, ok := in.TargetMeta()
	if !ok || !m.IsPermanode() {
		return Aspect{}, false
	}
	return detailAspect("Permanode", "permanode", in.Target, permanodeFields(m)), true
}

// Directory offers a directory view for directory blobs and for permanodes
// whose content is a directory.
func Directory(in Input) (Aspect, bool) {
	m, ok := in.TargetMeta()
	if !ok {
		return Aspect{}, false
	}
	dir := m
	if m.IsPermanode() {
		if dir, ok = in.contentMeta(m); !ok {
			return Aspect{}, false
		}
	}
	if dir.Dir == nil && dir.CamliType != domain.CamliTypeDirectory {
		return Aspect{}, false
	}
	return detailAspect("Directory", "directory", in.Target, directoryFields(dir)), true
}

// Blob offers the raw blob view for any target, known or not.
func Blob(in Input) (Aspect, bool) {
	if !in.Target.Valid() {
		return Aspect{}, false
	}
	m, _ := in.TargetMeta()
	return detailAspect("Blob", "blob", in.Target, blobFields(in.Target, m)), true
}

func detailAspect(title, fragment string, target domain.Ref, fields []Field) Aspect {
	return Aspect{
		Title:    title,
		Fragment: fragment,
		Content: func(size Size, t Transition) Content {
			return &Detail{Title: title, Ref: target, Fields: fields, Size: size}
		},
	}
}
