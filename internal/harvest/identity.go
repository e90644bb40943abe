package harvest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/openfactlab/article-harvester/internal/hash/sha256"
)

// numericIDPatterns capture the digit-bearing path shapes the supported
// publishers use for canonical article ids. Order matters: the first match
// wins.
var numericIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/post-(\d+)/?$`),
	regexp.MustCompile(`/joke/(\d+)/?$`),
	regexp.MustCompile(`/article/(\d+)/?$`),
	regexp.MustCompile(`/(\d+)/?$`),
}

// ResolveID derives a stable identifier from a source URL. It prefers the
// site's numeric id, falls back to the last path segment (slug), and finally
// to a SHA-256 digest of the full URL. Ids are only unique within one
// publisher's record stream unless the caller namespaces them.
func ResolveID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return sha256.HexDigest([]byte(rawURL))
	}

	path := parsed.Path
	for _, pattern := range numericIDPatterns {
		if m := pattern.FindStringSubmatch(path); m != nil {
			return m[1]
		}
	}

	if slug := lastPathSegment(path); slug != "" {
		return slug
	}
	return sha256.HexDigest([]byte(rawURL))
}

func lastPathSegment(path string) string {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
