package ingredients

import "strings"

// Match is a single dictionary phrase found in scanned text
type Match struct {
	Phrase      string `json:"phrase"`
	Explanation string `json:"explanation"`
}

// MatchResult lists matches in dictionary order
type MatchResult []Match

// Status is the outcome of a scan
type Status int

const (
	Safe Status = iota
	Flagged
)

func (s Status) String() string {
	if s == Flagged {
		return "flagged"
	}
	return "safe"
}

// Match scans text for every phrase in the dictionary.
//
// text must already be lowercase; containment is case sensitive and does not
// respect word boundaries, so "msg" also hits inside longer tokens.
func (d *Dictionary) Match(text string) MatchResult {
	var result MatchResult
	for _, r := range d.rules {
		if strings.Contains(text, r.Phrase) {
			result = append(result, Match{Phrase: r.Phrase, Explanation: r.Explanation})
		}
	}
	return result
}

// StatusOf reports Flagged iff the result has at least one match
func StatusOf(result MatchResult) Status {
	if len(result) > 0 {
		return Flagged
	}
	return Safe
}

// Status is a convenience for StatusOf(r)
func (r MatchResult) Status() Status {
	return StatusOf(r)
}
