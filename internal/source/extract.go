package source

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Extraction regexes shared by the homepage and web-search adapters.
// Matching happens on width-folded text so full-width digits from Korean
// portals are caught too.
var (
	telLink    = regexp.MustCompile(`(?i)tel:([+\d\-.\s()]{6,20})`)
	mailtoLink = regexp.MustCompile(`(?i)mailto:([A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})`)
	phoneText  = regexp.MustCompile(`0\d{1,2}[-.)\s]?\d{3,4}[-.\s]?\d{4}`)
	faxLabel   = regexp.MustCompile(`(?i)(?:fax|팩스|F)\s*[:.]?\s*(0\d{1,2}[-.)\s]?\d{3,4}[-.\s]?\d{4})`)
	emailText  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	addrLine   = regexp.MustCompile(`(서울|부산|대구|인천|광주|대전|울산|세종|경기|강원|충청북도|충청남도|충북|충남|전라북도|전라남도|전북|전남|경상북도|경상남도|경북|경남|제주)[^\n<>"]{5,90}`)
)

// foldText normalizes a document for extraction.
func foldText(s string) string {
	return width.Fold.String(s)
}

// extractPhones returns phone-looking strings in order of appearance,
// tel: links first since an explicit link is the page author's own label.
// Fax-labeled numbers are excluded; extractFaxes picks those up.
func extractPhones(text string) []string {
	text = foldText(text)
	faxes := make(map[string]bool)
	for _, m := range faxLabel.FindAllStringSubmatch(text, -1) {
		faxes[strings.TrimSpace(m[1])] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || faxes[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, m := range telLink.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range phoneText.FindAllString(text, -1) {
		add(m)
	}
	return out
}

// extractFaxes returns numbers the page explicitly labels as fax.
func extractFaxes(text string) []string {
	text = foldText(text)
	seen := make(map[string]bool)
	var out []string
	for _, m := range faxLabel.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[1])
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// extractEmails returns email addresses, mailto: links first.
func extractEmails(text string) []string {
	text = foldText(text)
	seen := make(map[string]bool)
	var out []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	for _, m := range mailtoLink.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range emailText.FindAllString(text, -1) {
		add(m)
	}
	return out
}

// extractAddresses returns lines that start with a Korean region name.
func extractAddresses(text string) []string {
	text = foldText(text)
	seen := make(map[string]bool)
	var out []string
	for _, m := range addrLine.FindAllString(text, -1) {
		v := strings.TrimSpace(m)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
