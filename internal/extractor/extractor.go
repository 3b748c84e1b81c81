package extractor

import (
	"regexp"
	"strings"
)

// domainPattern matches bare hostnames in free text, tolerating an optional
// scheme and www. prefix. It deliberately over-matches (any TLD-like suffix)
// because the registry prober is the authority on whether a name resolves to
// anything real.
var domainPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?([a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.[a-z]{2,})`)

// Domains extracts candidate domain names from raw lead content. Matches are
// lowercased, stripped of scheme and www. prefixes, and deduplicated while
// preserving first-seen order. Content with no hostnames yields nil;
// extraction cannot fail.
func Domains(content string) []string {
	matches := domainPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	domains := make([]string, 0, len(matches))
	for _, m := range matches {
		host := strings.ToLower(strings.TrimSuffix(m[1], "."))
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		domains = append(domains, host)
	}
	return domains
}
