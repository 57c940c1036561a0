// Package media normalizes the title strings the watch-history page
// exposes. Prime Video decorates titles with quality tags, trailing years
// and season markers; providers want the bare title.
package media

import (
	"regexp"
	"strings"
)

var (
	// yearRe matches a parenthesized or bracketed release year: (2019), [2019].
	yearRe = regexp.MustCompile(`[\(\[]((?:19|20)\d{2})[\)\]]`)

	// qualityTagRe matches quality and edition decorations Prime appends:
	// (4K UHD), [Ultra HD], (Extended Cut), [Dubbed], "Director's Cut".
	qualityTagRe = regexp.MustCompile(`(?i)[\(\[](?:4k(?: uhd)?|uhd|hd|ultra hd|extended(?: cut| edition)?|director'?s cut|uncut|dubbed|subbed|subtitled|english dub)[\)\]]`)

	// seasonMarkerRe matches a season suffix glued to a series title:
	// "Title - Season 2", "Title: Season 2", "Title, Season 2", "Title Season 2".
	seasonMarkerRe = regexp.MustCompile(`(?i)[\s\-:,]*\b(?:season|series|volume|vol\.?)\s*(\d+)\s*$`)

	// episodeMarkerRe matches a trailing episode token: "S1 E4", "S01E04".
	episodeMarkerRe = regexp.MustCompile(`(?i)[\s\-:,]*\bs\d{1,2}\s*e\d{1,3}\s*$`)
)

// CleanTitle strips decorations from a scraped title and extracts a release
// year when the page includes one. The returned title keeps its original
// punctuation apart from removed tags.
func CleanTitle(raw string) (string, string) {
	if raw == "" {
		return "", ""
	}

	title := raw
	year := ""

	if m := yearRe.FindStringSubmatch(title); len(m) > 1 {
		year = m[1]
		title = strings.Replace(title, m[0], "", 1)
	}

	title = qualityTagRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(strings.Join(strings.Fields(title), " "))
	title = strings.TrimRight(title, "-:, ")

	return title, year
}

// SplitSeasonMarker removes a trailing season or episode marker and reports
// whether one was present. A marker is a strong series signal regardless of
// what the page's type hint said.
func SplitSeasonMarker(title string) (string, bool) {
	if loc := episodeMarkerRe.FindStringIndex(title); loc != nil {
		base := strings.TrimSpace(title[:loc[0]])
		// the episode token may follow a season marker
		if stripped, _ := SplitSeasonMarker(base); stripped != "" {
			base = stripped
		}
		return base, true
	}
	if loc := seasonMarkerRe.FindStringIndex(title); loc != nil {
		base := strings.TrimSpace(title[:loc[0]])
		if base == "" {
			// "Season 2" alone is not a usable title
			return title, false
		}
		return base, true
	}
	return title, false
}
