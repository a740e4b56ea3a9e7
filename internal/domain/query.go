package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawQueryPrefix marks a search-box query whose remainder is a JSON constraint.
const RawQueryPrefix = "raw:"

// Query describes a search: either free text, a structured constraint, or both.
// Two queries are the same query iff their Key is equal.
type Query struct {
	Expression string           `json:"expression,omitempty"`
	Constraint *Constraint      `json:"constraint,omitempty"`
	Describe   *DescribeRequest `json:"describe,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// Constraint is the structured predicate subset understood by the stores.
// Field order matters: it is the canonical serialization order.
//
// A constraint parsed from search-box JSON that uses fields outside the
// subset keeps that JSON in Raw instead. It is sent to the server verbatim
// and the structured fields are left empty.
type Constraint struct {
	Anything      bool                 `json:"anything,omitempty"`
	BlobRefPrefix string               `json:"blobRefPrefix,omitempty"`
	CamliType     string               `json:"camliType,omitempty"`
	Permanode     *PermanodeConstraint `json:"permanode,omitempty"`
	Logical       *LogicalConstraint   `json:"logical,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// MarshalJSON writes Raw as-is when set.
func (c Constraint) MarshalJSON() ([]byte, error) {
	if c.Raw != nil {
		return c.Raw, nil
	}
	type plain Constraint
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plain(c)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IsRaw reports whether the constraint is opaque JSON outside the subset.
func (c *Constraint) IsRaw() bool {
	return c != nil && c.Raw != nil
}

// PermanodeConstraint matches permanodes by attribute or relation.
type PermanodeConstraint struct {
	Attr     string              `json:"attr,omitempty"`
	Value    string              `json:"value,omitempty"`
	NumValue *NumValueConstraint `json:"numValue,omitempty"`
	Relation *RelationConstraint `json:"relation,omitempty"`
}

// NumValueConstraint bounds the numeric value of an attribute.
type NumValueConstraint struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// RelationConstraint matches permanodes related to any blob matching Any.
type RelationConstraint struct {
	Relation string      `json:"relation"` // "parent" or "child"
	Any      *Constraint `json:"any,omitempty"`
}

// LogicalConstraint combines two constraints.
type LogicalConstraint struct {
	Op string      `json:"op"` // "and", "or", "not"
	A  *Constraint `json:"a,omitempty"`
	B  *Constraint `json:"b,omitempty"`
}

// DescribeRequest selects which metadata the store attaches to results.
type DescribeRequest struct {
	Depth int            `json:"depth,omitempty"`
	Rules []DescribeRule `json:"rules,omitempty"`
}

// DescribeRule follows the named attributes when describing.
type DescribeRule struct {
	Attrs []string `json:"attrs,omitempty"`
}

// DefaultDescribe returns the describe rules every session query uses.
// Session reuse by metadata containment depends on all queries sharing them.
func DefaultDescribe() *DescribeRequest {
	return &DescribeRequest{
		Depth: 1,
		Rules: []DescribeRule{{Attrs: []string{"camliContent", "camliContentImage", "camliMember"}}},
	}
}

// MatchAll returns the sentinel query that matches everything.
func MatchAll() Query {
	return Query{
		Constraint: &Constraint{Anything: true},
		Describe:   DefaultDescribe(),
	}
}

// TextQuery wraps a free-text search expression.
func TextQuery(expr string) Query {
	return Query{Expression: expr, Describe: DefaultDescribe()}
}

// TargetQuery selects a single blob (and its description) by ref.
func TargetQuery(ref Ref) Query {
	return Query{
		Constraint: &Constraint{BlobRefPrefix: string(ref)},
		Describe:   DefaultDescribe(),
	}
}

// ChildrenOf selects the permanodes that have ref as a parent.
func ChildrenOf(ref Ref) Query {
	return Query{
		Constraint: &Constraint{
			Permanode: &PermanodeConstraint{
				Relation: &RelationConstraint{
					Relation: "parent",
					Any:      &Constraint{BlobRefPrefix: string(ref)},
				},
			},
		},
		Describe: DefaultDescribe(),
	}
}

// ConstraintQuery wraps a structured constraint.
func ConstraintQuery(c *Constraint) Query {
	return Query{Constraint: c, Describe: DefaultDescribe()}
}

// Key returns the canonical serialized form of the query.
func (q Query) Key() string {
	b, err := json.Marshal(q)
	if err != nil {
		// Every field is a plain value; Marshal cannot fail.
		return fmt.Sprintf("%#v", q)
	}
	return string(b)
}

// Equal reports whether two queries serialize identically.
func (q Query) Equal(o Query) bool {
	return q.Key() == o.Key()
}

// IsMatchAll reports whether q is the match-everything sentinel.
func (q Query) IsMatchAll() bool {
	return q.Expression == "" && q.Constraint != nil && q.Constraint.Anything
}

// ParseConstraint decodes constraint JSON. Only text that is not a single
// JSON object fails. An object that does not decode exactly into the subset
// is returned as a raw constraint so it still reaches the server unchanged.
func ParseConstraint(raw string) (*Constraint, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("{")) {
		return nil, fmt.Errorf("%w: constraint is not an object", ErrMalformedQuery)
	}

	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	dec.DisallowUnknownFields()
	var c Constraint
	if err := dec.Decode(&c); err != nil {
		return &Constraint{Raw: json.RawMessage(buf.Bytes())}, nil
	}
	return &c, nil
}

// ParseSearch turns search-box text into a query. Text prefixed with "raw:"
// is decoded as a JSON constraint; anything else is a free-text expression.
func ParseSearch(text string) (Query, error) {
	if rest, ok := strings.CutPrefix(text, RawQueryPrefix); ok {
		c, err := ParseConstraint(rest)
		if err != nil {
			return Query{}, err
		}
		return ConstraintQuery(c), nil
	}
	return TextQuery(text), nil
}

// RawSearch formats a constraint as "raw:" search-box text.
func RawSearch(c *Constraint) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return RawQueryPrefix + "{}"
	}
	return RawQueryPrefix + strings.TrimSpace(buf.String())
}
