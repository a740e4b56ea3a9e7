package store

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/blobnav/internal/blobref"
	"github.com/mmcdole/blobnav/internal/domain"
)

// DefaultPageSize is the number of results per page when a query sets no limit.
const DefaultPageSize = 50

// index is a point-in-time view of the store used to evaluate one search.
type index struct {
	desc    map[domain.Ref]*domain.Descriptor
	order   []domain.Ref
	parents map[domain.Ref][]domain.Ref // member -> containing permanodes
}

func (s *BlobStore) snapshot() *index {
	idx := &index{
		desc:    make(map[domain.Ref]*domain.Descriptor),
		parents: make(map[domain.Ref][]domain.Ref),
	}
	for _, ref := range s.refs() {
		d, ok := s.describe(ref)
		if !ok {
			continue
		}
		idx.desc[ref] = d
		idx.order = append(idx.order, ref)
	}
	for _, ref := range idx.order {
		d := idx.desc[ref]
		if !d.IsPermanode() {
			continue
		}
		for name, vals := range d.Permanode.Attr {
			if name != domain.AttrMember && !strings.HasPrefix(name, domain.AttrPathPfx) {
				continue
			}
			for _, v := range vals {
				idx.parents[domain.Ref(v)] = append(idx.parents[domain.Ref(v)], ref)
			}
		}
	}
	return idx
}

// search evaluates q and returns up to limit results, newest first.
func (s *BlobStore) search(q domain.Query, limit int) *domain.SearchResult {
	idx := s.snapshot()
	terms := parseExpression(q.Expression)

	var hits []*domain.Descriptor
	for _, ref := range idx.order {
		d := idx.desc[ref]
		if q.Constraint != nil && !idx.match(q.Constraint, d) {
			continue
		}
		if q.Constraint == nil && !d.IsPermanode() {
			continue
		}
		if !idx.matchTerms(terms, d) {
			continue
		}
		hits = append(hits, d)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		ti, tj := modTime(hits[i]), modTime(hits[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return hits[i].BlobRef < hits[j].BlobRef
	})

	res := &domain.SearchResult{Description: make(map[domain.Ref]*domain.Descriptor)}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
		res.Continue = strconv.Itoa(limit)
	}
	for _, d := range hits {
		res.Blobs = append(res.Blobs, d.BlobRef)
		idx.describeInto(res.Description, d, q.Describe)
	}
	return res
}

// describeInto adds d and, following the request's rules, the blobs its
// attributes point at.
func (idx *index) describeInto(out map[domain.Ref]*domain.Descriptor, d *domain.Descriptor, req *domain.DescribeRequest) {
	out[d.BlobRef] = d
	if req == nil || req.Depth < 1 || !d.IsPermanode() {
		return
	}
	for _, rule := range req.Rules {
		for _, attr := range rule.Attrs {
			for _, v := range d.Permanode.Attr[attr] {
				if cd, ok := idx.desc[domain.Ref(v)]; ok {
					out[cd.BlobRef] = cd
				}
			}
		}
	}
}

func (idx *index) match(c *domain.Constraint, d *domain.Descriptor) bool {
	if c == nil {
		return true
	}
	constrained := false
	if c.Anything {
		constrained = true
		if !d.IsPermanode() {
			return false
		}
	}
	if c.BlobRefPrefix != "" {
		constrained = true
		if !blobref.HasPrefix(d.BlobRef, c.BlobRefPrefix) {
			return false
		}
	}
	if c.CamliType != "" {
		constrained = true
		if d.CamliType != c.CamliType {
			return false
		}
	}
	if c.Permanode != nil {
		constrained = true
		if !idx.matchPermanode(c.Permanode, d) {
			return false
		}
	}
	if c.Logical != nil {
		constrained = true
		if !idx.matchLogical(c.Logical, d) {
			return false
		}
	}
	// An empty constraint selects every permanode.
	return constrained || d.IsPermanode()
}

func (idx *index) matchLogical(l *domain.LogicalConstraint, d *domain.Descriptor) bool {
	switch l.Op {
	case "and":
		return idx.match(l.A, d) && idx.match(l.B, d)
	case "or":
		return idx.match(l.A, d) || idx.match(l.B, d)
	case "xor":
		return idx.match(l.A, d) != idx.match(l.B, d)
	case "not":
		// Negation ranges over permanodes only.
		return d.IsPermanode() && !idx.match(l.A, d)
	}
	return false
}

func (idx *index) matchPermanode(pc *domain.PermanodeConstraint, d *domain.Descriptor) bool {
	if !d.IsPermanode() {
		return false
	}
	if pc.Attr != "" && !matchAttr(pc, d.Permanode.Attr[pc.Attr]) {
		return false
	}
	if pc.Relation != nil && !idx.matchRelation(pc.Relation, d) {
		return false
	}
	return true
}

func matchAttr(pc *domain.PermanodeConstraint, vals []string) bool {
	if len(vals) == 0 {
		return false
	}
	for _, v := range vals {
		if pc.Value != "" && v != pc.Value {
			continue
		}
		if pc.NumValue != nil && !inRange(v, pc.NumValue) {
			continue
		}
		return true
	}
	return false
}

func inRange(v string, nv *domain.NumValueConstraint) bool {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	if nv.Min != nil && n < *nv.Min {
		return false
	}
	if nv.Max != nil && n > *nv.Max {
		return false
	}
	return true
}

func (idx *index) matchRelation(rc *domain.RelationConstraint, d *domain.Descriptor) bool {
	var related []domain.Ref
	switch rc.Relation {
	case "parent":
		related = idx.parents[d.BlobRef]
	case "child":
		for name, vals := range d.Permanode.Attr {
			if name == domain.AttrMember || strings.HasPrefix(name, domain.AttrPathPfx) {
				for _, v := range vals {
					related = append(related, domain.Ref(v))
				}
			}
		}
	default:
		return false
	}
	for _, ref := range related {
		rd, ok := idx.desc[ref]
		if !ok {
			continue
		}
		if rc.Any == nil || idx.match(rc.Any, rd) {
			return true
		}
	}
	return false
}

// term is one word of a free-text search expression.
type term struct {
	op    string // "", "tag", "title", "is", "attr"
	arg   string
	value string // attr only
}

func parseExpression(expr string) []term {
	var terms []term
	for _, f := range strings.Fields(expr) {
		op, arg, ok := strings.Cut(f, ":")
		if !ok {
			terms = append(terms, term{arg: strings.ToLower(f)})
			continue
		}
		switch op {
		case "tag", "title", "is":
			terms = append(terms, term{op: op, arg: strings.ToLower(arg)})
		case "attr":
			name, value, _ := strings.Cut(arg, ":")
			terms = append(terms, term{op: op, arg: name, value: value})
		default:
			terms = append(terms, term{arg: strings.ToLower(f)})
		}
	}
	return terms
}

func (idx *index) matchTerms(terms []term, d *domain.Descriptor) bool {
	if len(terms) == 0 {
		return true
	}
	if !d.IsPermanode() {
		return false
	}
	for _, t := range terms {
		if !idx.matchTerm(t, d) {
			return false
		}
	}
	return true
}

func (idx *index) matchTerm(t term, d *domain.Descriptor) bool {
	attr := d.Permanode.Attr
	switch t.op {
	case "tag":
		for _, v := range attr[domain.AttrTag] {
			if strings.ToLower(v) == t.arg {
				return true
			}
		}
		return false
	case "title":
		return strings.Contains(strings.ToLower(d.Permanode.Get(domain.AttrTitle)), t.arg)
	case "attr":
		for _, v := range attr[t.arg] {
			if t.value == "" || v == t.value {
				return true
			}
		}
		return false
	case "is":
		cd := idx.content(d)
		switch t.arg {
		case "image":
			return cd != nil && cd.Image != nil
		case "file":
			return cd != nil && cd.File != nil
		case "set":
			return d.Permanode.IsContainer()
		}
		return false
	}
	cd := idx.content(d)
	return strings.Contains(strings.ToLower(d.Title()), t.arg) ||
		(cd != nil && strings.Contains(strings.ToLower(cd.Title()), t.arg))
}

func (idx *index) content(d *domain.Descriptor) *domain.Descriptor {
	ref, ok := d.ContentRef()
	if !ok {
		return nil
	}
	return idx.desc[ref]
}

func modTime(d *domain.Descriptor) time.Time {
	if d.IsPermanode() {
		return d.Permanode.ModTime
	}
	return time.Time{}
}
