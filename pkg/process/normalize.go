package process

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Normalize produces the canonical form of a URL used as the identity key
// for site index entries and page cache rows.
func Normalize(rawURL string) (string, error) {
	flags := purell.FlagLowercaseScheme |
		purell.FlagLowercaseHost |
		purell.FlagRemoveDefaultPort |
		purell.FlagRemoveFragment |
		purell.FlagDecodeUnnecessaryEscapes |
		purell.FlagSortQuery |
		purell.FlagRemoveDuplicateSlashes |
		purell.FlagRemoveDotSegments

	normalized, err := purell.NormalizeURLString(rawURL, flags)
	if err != nil {
		return "", err
	}

	// An empty path and "/" are the same page; collapse them so the
	// frontier and the page cache see one key.
	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SameOrigin reports whether candidate shares scheme and host with base.
// The crawl never leaves the origin of the resource's base URL.
func SameOrigin(base, candidate string) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Scheme, c.Scheme) && strings.EqualFold(b.Hostname(), c.Hostname())
}
