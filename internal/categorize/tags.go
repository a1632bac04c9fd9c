package categorize

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)
	urlRe   = regexp.MustCompile(`\bhttps?://[^\s<>"]+`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	dateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2})\b`)
	timeRe  = regexp.MustCompile(`\b\d{1,2}(:\d{2})?\s?(?i:am|pm)\b|\b\d{1,2}:\d{2}\b`)
	numRe   = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
)

// ExtractTags pulls structured markers out of content: emails, URLs, phone
// numbers, dates, times, and a generic numeric marker. Tags are the marker
// kinds, not the matched values, so they stay bounded and index-friendly.
func ExtractTags(content string) []string {
	set := make(map[string]struct{})
	if emailRe.MatchString(content) {
		set["email"] = struct{}{}
	}
	if urlRe.MatchString(content) {
		set["url"] = struct{}{}
	}
	if phoneRe.MatchString(content) {
		set["phone"] = struct{}{}
	}
	if dateRe.MatchString(content) {
		set["date"] = struct{}{}
	}
	if timeRe.MatchString(content) {
		set["time"] = struct{}{}
	}
	if numRe.MatchString(content) {
		set["numeric"] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExtractedValues returns the raw matches of a marker kind, for callers that
// need the values themselves rather than the tag.
func ExtractedValues(content, kind string) []string {
	var re *regexp.Regexp
	switch kind {
	case "email":
		re = emailRe
	case "url":
		re = urlRe
	case "phone":
		re = phoneRe
	case "date":
		re = dateRe
	case "time":
		re = timeRe
	default:
		return nil
	}
	matches := re.FindAllString(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
