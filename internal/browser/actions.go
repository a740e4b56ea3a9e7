package browser

import (
	"fmt"
	"strings"

	"github.com/mmcdole/blobnav/internal/batch"
	"github.com/mmcdole/blobnav/internal/domain"
)

// Action names a selection command the shell may offer.
type Action string

const (
	ActionClearSelection Action = "clear"
	ActionCreateSet      Action = "create-set"
	ActionSelectAsSet    Action = "select-as-set"
	ActionAddToSet       Action = "add-to-set"
	ActionDelete         Action = "delete"
	ActionTag            Action = "tag"
)

// Control is an available action with its label.
type Control struct {
	Action Action
	Label  string
}

// Controls returns the actions applicable to the current selection, in
// display order.
func (b *Browser) Controls() []Control {
	n := b.selection.Len()
	if n == 0 {
		return nil
	}
	controls := []Control{
		{ActionClearSelection, "Clear selection"},
		{ActionCreateSet, createSetLabel(n)},
	}
	if b.CanSelectAsCurrentSet() {
		controls = append(controls, Control{ActionSelectAsSet, "Select as current set"})
	}
	if b.currentSet.Valid() {
		controls = append(controls, Control{ActionAddToSet, "Add to current set"})
	}
	controls = append(controls,
		Control{ActionDelete, deleteLabel(n)},
		Control{ActionTag, fmt.Sprintf("Tag (%d) items", n)},
	)
	return controls
}

func createSetLabel(n int) string {
	if n == 1 {
		return "Create set with item"
	}
	return fmt.Sprintf("Create set with %d items", n)
}

func deleteLabel(n int) string {
	if n == 1 {
		return "Delete selected item"
	}
	return fmt.Sprintf("Delete (%d) selected items", n)
}

// ToggleSelect flips ref in the selection.
func (b *Browser) ToggleSelect(ref domain.Ref) {
	b.selection.Toggle(ref)
	b.changed()
}

// ClearSelection empties the selection.
func (b *Browser) ClearSelection() {
	b.selection.Clear()
	b.changed()
}

// Selected reports whether ref is selected.
func (b *Browser) Selected(ref domain.Ref) bool {
	return b.selection.Has(ref)
}

// CanSelectAsCurrentSet reports whether exactly one permanode is selected.
func (b *Browser) CanSelectAsCurrentSet() bool {
	if b.selection.Len() != 1 {
		return false
	}
	s := b.ctl.ChildSession()
	if s == nil {
		return false
	}
	d, ok := s.Meta(b.selection.Refs()[0])
	return ok && d.CamliType == domain.CamliTypePermanode
}

// SelectAsCurrentSet makes the single selected permanode the target of
// AddSelectionToCurrentSet.
func (b *Browser) SelectAsCurrentSet() bool {
	if !b.CanSelectAsCurrentSet() {
		return false
	}
	b.currentSet = b.selection.Refs()[0]
	b.selection.Clear()
	b.notice = "current set: " + string(b.currentSet)
	b.changed()
	return true
}

// AddSelectionToCurrentSet adds the selection to the current set.
func (b *Browser) AddSelectionToCurrentSet() bool {
	if !b.currentSet.Valid() || !b.selection.Any() {
		return false
	}
	set := b.currentSet
	b.orch.AddMembers(set, b.selection.Refs(), b.settled("added to "+string(set)))
	return true
}

// CreateSetWithSelection creates a set titled "New set" holding the
// selection.
func (b *Browser) CreateSetWithSelection() {
	refs := b.selection.Refs()
	b.orch.CreateSet(batch.NewSetTitle, refs, func(set domain.Ref, err error) {
		if err != nil {
			b.notice = "create set failed: " + err.Error()
			b.changed()
			return
		}
		b.logger.Info("created set", "ref", set, "members", len(refs))
	}, b.settled("created set"))
}

// NewPermanode creates an empty permanode and opens it.
func (b *Browser) NewPermanode() {
	b.orch.CreateSet("", nil, func(ref domain.Ref, err error) {
		if err != nil {
			b.notice = "create permanode failed: " + err.Error()
			b.changed()
			return
		}
		b.Open(ref)
	}, nil)
}

// DeletePrompt is the confirmation the shell shows before DeleteSelection.
func (b *Browser) DeletePrompt() string {
	if b.selection.Len() > 1 {
		return fmt.Sprintf("Delete %d items?", b.selection.Len())
	}
	return "Delete item?"
}

// DeleteSelection deletes every selected blob. Callers confirm first.
func (b *Browser) DeleteSelection() bool {
	if !b.selection.Any() {
		return false
	}
	b.orch.Delete(b.selection.Refs(), b.settled("deleted"))
	return true
}

// TagSelection adds the comma separated tags to every selected permanode.
func (b *Browser) TagSelection(text string) bool {
	tags := ParseTags(text)
	if len(tags) == 0 || !b.selection.Any() {
		return false
	}
	b.orch.Tag(b.selection.Refs(), tags, b.settled("tagged"))
	return true
}

// UntagSelection removes tag from every selected permanode.
func (b *Browser) UntagSelection(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || !b.selection.Any() {
		return false
	}
	b.orch.Untag(b.selection.Refs(), tag, b.settled("untagged"))
	return true
}

// ParseTags splits comma separated tag input.
func ParseTags(text string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(text, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

// KnownTags returns the tags seen on the current listing, for completion.
func (b *Browser) KnownTags() []string {
	s := b.ctl.ChildSession()
	if s == nil {
		return nil
	}
	seen := make(map[string]bool)
	var tags []string
	for _, ref := range s.Results() {
		d, ok := s.Meta(ref)
		if !ok || !d.IsPermanode() {
			continue
		}
		for _, t := range d.Permanode.Attr[domain.AttrTag] {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func (b *Browser) settled(what string) batch.SettledFunc {
	return func(failed int) {
		if failed > 0 {
			b.notice = fmt.Sprintf("%s with %d failures", what, failed)
		} else {
			b.notice = what
		}
		b.changed()
	}
}
