package music

import (
	"regexp"
	"strconv"
	"strings"
)

// Style is the structured reading of a free-form music prompt.
type Style struct {
	Genre string
	Key   string
	BPM   int
}

type genreRule struct {
	genre string
	re    *regexp.Regexp
	bpm   int
	key   string
}

// genreRules are checked in order; the first match wins.
var genreRules = []genreRule{
	{"electronic", regexp.MustCompile(`(?i)electronic|edm|synth|techno|ambient`), 128, "Am"},
	{"hip-hop", regexp.MustCompile(`(?i)hip[- ]?hop|rap|trap|boom[- ]?bap`), 90, "Cm"},
	{"rock", regexp.MustCompile(`(?i)rock|guitar|punk|metal|grunge`), 120, "Em"},
	{"jazz", regexp.MustCompile(`(?i)jazz|swing|bebop|blues`), 110, "Dm"},
	{"classical", regexp.MustCompile(`(?i)classical|orchestra|symphony|piano`), 80, "C"},
	{"pop", regexp.MustCompile(`(?i)pop|dance|disco|funk`), 120, "G"},
	{"lo-fi", regexp.MustCompile(`(?i)lo[- ]?fi|chill|relaxing|study`), 75, "Fm"},
}

var (
	bpmRe = regexp.MustCompile(`(?i)(\d{2,3})\s*bpm`)
	// Note names are matched case-sensitively so articles like "a" are not keys.
	keyRe = regexp.MustCompile(`(?:^|[^A-Za-z0-9])([A-G][#b]?)(m|\s*(?i:major|minor|maj|min))?(?:[^A-Za-z0-9#]|$)`)
)

// ParsePrompt derives genre, key and tempo from a prompt such as
// "electronic ambient, synth pads, 128 bpm, Am key". Missing values fall back
// to the genre's defaults; an unrecognised genre reads as electronic.
func ParsePrompt(prompt string) Style {
	rule := genreRules[0]
	for _, r := range genreRules {
		if r.re.MatchString(prompt) {
			rule = r
			break
		}
	}

	st := Style{Genre: rule.genre, Key: rule.key, BPM: rule.bpm}

	if m := bpmRe.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			st.BPM = n
		}
	}

	if m := keyRe.FindStringSubmatch(prompt); m != nil {
		// a bare note name reads as minor
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(m[2])), "maj") {
			st.Key = m[1]
		} else {
			st.Key = m[1] + "m"
		}
	}
	return st
}
