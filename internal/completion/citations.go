package completion

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/digkill/finassist/internal/models"
)

var (
	markerPattern = regexp.MustCompile(`\[(\d{1,3})\]`)
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"'\]\[()]+`)
)

// ExtractCitations scans content for numbered markers such as [2], which refer
// to sources[1], and for bare URLs. Results are deduplicated by URL in order of
// first appearance. Inline URLs that are not in sources get index 0. When the
// text carries no markers at all, every source is returned in vendor order.
func ExtractCitations(content string, sources []string) []models.Citation {
	var citations []models.Citation
	seen := make(map[string]bool)
	add := func(index int, url string) {
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		citations = append(citations, models.Citation{Index: index, URL: url})
	}

	markers := markerPattern.FindAllStringSubmatch(content, -1)
	for _, m := range markers {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		add(n, sources[n-1])
	}
	if len(markers) == 0 {
		for i, src := range sources {
			add(i+1, src)
		}
	}

	for _, raw := range urlPattern.FindAllString(content, -1) {
		url := strings.TrimRight(raw, ".,;:!?")
		index := 0
		for i, src := range sources {
			if src == url {
				index = i + 1
				break
			}
		}
		add(index, url)
	}
	return citations
}
