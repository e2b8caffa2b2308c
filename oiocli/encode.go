package oiocli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// encodePath percent-encodes a content path for inclusion in a proxy
// URI, grounded on oiopy/utils.py:quote (urllib.quote with safe='/').
// net/url.PathEscape is the stdlib equivalent of that quote call; no
// pack dependency covers URL percent-encoding specifically, so this one
// helper stays on the standard library (see DESIGN.md).
func encodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// splitPosition parses a chunk position string ("3" or "3.1") into its
// meta-chunk index and, for EC fragments, the fragment index (0 for a
// plain replicated position).
func splitPosition(pos string) (metaChunk int, fragment int, err error) {
	parts := strings.SplitN(pos, ".", 2)
	metaChunk, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("oiocli: invalid chunk position %q: %w", pos, err)
	}
	if len(parts) == 1 {
		return metaChunk, 0, nil
	}
	fragment, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("oiocli: invalid chunk position %q: %w", pos, err)
	}
	return metaChunk, fragment, nil
}
