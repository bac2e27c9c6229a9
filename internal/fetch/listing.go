package fetch

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/sirupsen/logrus"
)

// maxListingSize bounds how much of a directory index is read.
const maxListingSize = 4 << 20

// Build directories on the image server are named YYYYMMDD_HH:MM; the colon
// may appear percent-encoded in the listing.
var buildDirPattern = regexp.MustCompile(`href="(?:\./)?(\d{8}_\d{2}(?::|%3[Aa])\d{2})/"`)

// ParseBuilds extracts the build directory names from an HTML index, sorted
// oldest first.
func ParseBuilds(listing []byte) []string {
	seen := make(map[string]bool)
	var builds []string
	for _, m := range buildDirPattern.FindAllSubmatch(listing, -1) {
		name, err := url.PathUnescape(string(m[1]))
		if err != nil || seen[name] {
			continue
		}
		seen[name] = true
		builds = append(builds, name)
	}
	// fixed width names sort chronologically
	sort.Strings(builds)
	return builds
}

// LatestBuild returns the newest build directory listed at indexURL.
func (c *Client) LatestBuild(ctx context.Context, indexURL string) (string, error) {
	if !strings.HasSuffix(indexURL, "/") {
		indexURL += "/"
	}
	listing, err := c.Fetch(ctx, indexURL, maxListingSize)
	if err != nil {
		return "", err
	}

	builds := ParseBuilds(listing)
	if len(builds) == 0 {
		return "", models.NewError(models.ErrNetwork, "", "no image builds listed at %s", redactURL(indexURL))
	}
	latest := builds[len(builds)-1]
	logrus.Debugf("Found %d builds at %s, using %s", len(builds), redactURL(indexURL), latest)
	return latest, nil
}
