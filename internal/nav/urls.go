package nav

import (
	"net/url"
	"strings"

	"github.com/mmcdole/blobnav/internal/domain"
)

// RefSearchPrefix in search-box text names a single blob.
const RefSearchPrefix = "ref:"

// DetailURL returns the location of ref's detail page.
func (c *Controller) DetailURL(ref domain.Ref) string {
	u := c.BaseURL()
	if u == nil {
		return ""
	}
	u.Path += string(ref)
	return u.String()
}

// SearchURL returns the location for search-box text. "ref:<blobref>" goes
// straight to that blob's detail page.
func (c *Controller) SearchURL(text string) string {
	if ref, ok := strings.CutPrefix(text, RefSearchPrefix); ok && ref != "" {
		return c.DetailURL(domain.Ref(ref))
	}
	u := c.BaseURL()
	if u == nil {
		return ""
	}
	v := url.Values{}
	v.Set(SearchParam, text)
	u.RawQuery = v.Encode()
	return u.String()
}

// SearchRootsURL returns the search for permanodes marked as roots.
func (c *Controller) SearchRootsURL() string {
	one := int64(1)
	return c.SearchURL(domain.RawSearch(&domain.Constraint{
		Permanode: &domain.PermanodeConstraint{
			Attr:     domain.AttrRoot,
			NumValue: &domain.NumValueConstraint{Min: &one},
		},
	}))
}

// FragmentURL returns the current location with its fragment replaced.
func (c *Controller) FragmentURL(fragment string) string {
	u := c.CurrentURL()
	if u == nil {
		return ""
	}
	u.Fragment = fragment
	return u.String()
}

// CurrentSearch returns the text the search box should show.
func (c *Controller) CurrentSearch() string {
	if c.target.Valid() {
		return RefSearchPrefix + string(c.target)
	}
	if c.current == nil {
		return ""
	}
	return c.current.Query().Get(SearchParam)
}

// ConnectionError is the error-list entry for a failed subscription.
const ConnectionError = "connection error - press ctrl+r to reconnect"

// Errors returns the server-reported errors plus one entry when either
// current session has lost its subscription.
func (c *Controller) Errors(status *domain.ServerStatus) []domain.StatusError {
	var errs []domain.StatusError
	if status != nil {
		errs = append(errs, status.Errors...)
	}
	if (c.targetSession != nil && c.targetSession.HasTransportError()) ||
		(c.childSession != nil && c.childSession.HasTransportError()) {
		errs = append(errs, domain.StatusError{Error: ConnectionError})
	}
	return errs
}
