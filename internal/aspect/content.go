package aspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/blobnav/internal/domain"
	"github.com/mmcdole/blobnav/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	keyStyle   = lipgloss.NewStyle().Faint(true)
)

// Item is one row of a result listing.
type Item struct {
	Ref   domain.Ref
	Title string
	Type  string
}

// Results is the content of the search/contents aspect. Shells that want an
// interactive list read Items; View renders a plain listing.
type Results struct {
	Session    *session.Session
	Size       Size
	Transition Transition
}

// Items returns the session's results with whatever metadata it has seen.
func (r *Results) Items() []Item {
	refs := r.Session.Results()
	items := make([]Item, 0, len(refs))
	for _, ref := range refs {
		it := Item{Ref: ref, Title: string(ref)}
		if d, ok := r.Session.Meta(ref); ok && d != nil {
			it.Title = d.Title()
			it.Type = d.CamliType
			if c, ok := d.ContentRef(); ok {
				if cd, ok := r.Session.Meta(c); ok && cd != nil {
					it.Type = contentType(cd)
					if d.Permanode.Get(domain.AttrTitle) == "" {
						it.Title = cd.Title()
					}
				}
			}
		}
		items = append(items, it)
	}
	return items
}

func contentType(d *domain.Descriptor) string {
	if d.File != nil && d.File.MIMEType != "" {
		return d.File.MIMEType
	}
	return d.CamliType
}

func (r *Results) View() string {
	var b strings.Builder
	switch {
	case r.Session.HasTransportError():
		b.WriteString("connection error")
	case !r.Session.Loaded():
		b.WriteString("loading...")
	default:
		items := r.Items()
		if len(items) == 0 {
			b.WriteString("no results")
		}
		for i, it := range items {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%-12s %s", it.Type, it.Title)
		}
	}
	return fit(b.String(), r.Size)
}

// Field is one labelled line of a detail view.
type Field struct {
	Key   string
	Value string
}

// Detail is the content of the type-specific detail aspects.
type Detail struct {
	Title  string
	Ref    domain.Ref
	Fields []Field
	Size   Size
}

func (d *Detail) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(d.Title))
	b.WriteString("  ")
	b.WriteString(string(d.Ref))
	for _, f := range d.Fields {
		fmt.Fprintf(&b, "\n%s %s", keyStyle.Render(f.Key+":"), f.Value)
	}
	return fit(b.String(), d.Size)
}

func fit(s string, size Size) string {
	st := lipgloss.NewStyle()
	if size.Width > 0 {
		st = st.MaxWidth(size.Width)
	}
	if size.Height > 0 {
		st = st.MaxHeight(size.Height)
	}
	return st.Render(s)
}

func imageFields(target, img *domain.Descriptor) []Field {
	fields := []Field{{"dimensions", fmt.Sprintf("%dx%d", img.Image.Width, img.Image.Height)}}
	if img.File != nil {
		fields = append(fields, Field{"file", img.File.FileName}, Field{"type", img.File.MIMEType})
	}
	if target.IsPermanode() {
		fields = append(fields, Field{"content", string(img.BlobRef)})
	}
	return fields
}

func permanodeFields(m *domain.Descriptor) []Field {
	names := make([]string, 0, len(m.Permanode.Attr))
	for name := range m.Permanode.Attr {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names)+1)
	for _, name := range names {
		for _, v := range m.Permanode.Attr[name] {
			fields = append(fields, Field{name, v})
		}
	}
	if !m.Permanode.ModTime.IsZero() {
		fields = append(fields, Field{"modified", m.Permanode.ModTime.Format("2006-01-02 15:04:05")})
	}
	return fields
}

func directoryFields(dir *domain.Descriptor) []Field {
	name := ""
	if dir.Dir != nil {
		name = dir.Dir.FileName
	}
	return []Field{{"name", name}, {"ref", string(dir.BlobRef)}}
}

func blobFields(ref domain.Ref, m *domain.Descriptor) []Field {
	if m == nil {
		return []Field{{"ref", string(ref)}, {"status", "not described"}}
	}
	fields := []Field{{"ref", string(ref)}, {"size", fmt.Sprintf("%d bytes", m.Size)}}
	if m.CamliType != "" {
		fields = append(fields, Field{"type", m.CamliType})
	}
	if m.File != nil {
		fields = append(fields, Field{"file", m.File.FileName})
	}
	return fields
}
