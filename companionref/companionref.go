// Package companionref recognizes a "companion: <ref>" line in a pull
// request body, grounded on
// original_source/src/companion.rs's companion_parse_long/_short.
package companionref

import (
	"fmt"
	"regexp"
	"strconv"
)

// Ref is a reference to a companion pull request extracted from a PR body.
type Ref struct {
	HTMLURL string
	Owner   string
	Repo    string
	Number  int
}

// Both patterns are anchored to a single physical line with (?m)^...$ so a
// marker and its target on different lines never match.
var (
	longRE = regexp.MustCompile(`(?im)^[ \t]*companion:[ \t]*(?P<url>[a-z][a-z0-9+.-]*://(?P<host>[^/\s]+)/(?P<owner>[^/\s]+)/(?P<repo>[^/\s]+)/pull/(?P<number>[0-9]+))(?:\?\S*)?[ \t\r]*$`)
	shortRE = regexp.MustCompile(`(?im)^[ \t]*companion:[ \t]*(?P<owner>[^/\s]+)/(?P<repo>[^/\s]+)#(?P<number>[0-9]+)[ \t\r]*$`)
)

// Parse returns the first companion reference found in body, trying the
// long URL form before the short owner/repo#number form, so the long form
// wins on any overlap.
func Parse(body string) (Ref, bool) {
	if ref, ok := parseLong(body); ok {
		return ref, true
	}
	return parseShort(body)
}

func parseLong(body string) (Ref, bool) {
	m := longRE.FindStringSubmatch(body)
	if m == nil {
		return Ref{}, false
	}
	groups := namedGroups(longRE, m)
	number, err := strconv.Atoi(groups["number"])
	if err != nil || number < 0 {
		return Ref{}, false
	}
	url := fmt.Sprintf("https://%s/%s/%s/pull/%d", groups["host"], groups["owner"], groups["repo"], number)
	return Ref{HTMLURL: url, Owner: groups["owner"], Repo: groups["repo"], Number: number}, true
}

func parseShort(body string) (Ref, bool) {
	m := shortRE.FindStringSubmatch(body)
	if m == nil {
		return Ref{}, false
	}
	groups := namedGroups(shortRE, m)
	number, err := strconv.Atoi(groups["number"])
	if err != nil || number < 0 {
		return Ref{}, false
	}
	owner, repo := groups["owner"], groups["repo"]
	url := fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, number)
	return Ref{HTMLURL: url, Owner: owner, Repo: repo, Number: number}, true
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}
