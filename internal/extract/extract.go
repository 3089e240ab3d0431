// Package extract provides the default email extraction heuristics. The
// scheduler consumes these through the core.Extractor interface; anything
// smarter can be swapped in without touching the worker.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jobkontakt/crawler/internal/core"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// genericMailDomains never identify the employer; emails there are kept but
// never promoted to primary.
var genericMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"web.de":         {},
	"gmx.de":         {},
	"gmx.net":        {},
	"t-online.de":    {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"yahoo.com":      {},
	"yahoo.de":       {},
	"example.com":    {},
}

// legalSuffixes are stripped during company name normalization.
var legalSuffixes = []string{
	"gmbh & co. kg", "gmbh & co kg", "se & co. kga", "ag & co. kg",
	"gmbh", "mbh", "ag", "kg", "ug", "ohg", "gbr", "e.k.", "ek", "e.v.", "ev",
	"se", "inc", "ltd", "co",
}

// Extractor implements core.Extractor.
type Extractor struct{}

// New builds the default extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractEmails scans rendered HTML for addresses, deduplicates them and
// picks a primary: the address whose domain best matches the company name
// hint, generic mail providers excluded.
func (e *Extractor) ExtractEmails(html, companyNameHint string) core.ExtractionResult {
	seen := make(map[string]struct{})
	var emails []string
	for _, match := range emailRe.FindAllString(html, -1) {
		email := strings.ToLower(strings.Trim(match, ".-"))
		// Image filenames match the pattern too.
		if hasAssetSuffix(email) {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	sort.Strings(emails)

	res := core.ExtractionResult{Emails: emails, Count: len(emails)}
	if len(emails) == 0 {
		return res
	}

	res.PrimaryEmail = pickPrimary(emails, e.NormalizeCompanyName(companyNameHint), e)
	if res.PrimaryEmail != "" {
		res.PrimaryDomain = domainOf(res.PrimaryEmail)
	}
	return res
}

// NormalizeCompanyName lowercases, strips legal-form suffixes and collapses
// whitespace so name comparisons survive formatting differences.
func (e *Extractor) NormalizeCompanyName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss").Replace(s)
	for _, suffix := range legalSuffixes {
		s = strings.TrimSuffix(strings.TrimSpace(s), suffix)
	}
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// SimilarityScore is a token-overlap ratio in [0,1] over the normalized
// forms of both names.
func (e *Extractor) SimilarityScore(a, b string) float64 {
	tokensA := strings.Fields(e.NormalizeCompanyName(a))
	tokensB := strings.Fields(e.NormalizeCompanyName(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = struct{}{}
	}
	union := make(map[string]struct{}, len(tokensA)+len(tokensB))
	for tok := range setA {
		union[tok] = struct{}{}
	}
	shared := 0
	for _, tok := range tokensB {
		if _, ok := union[tok]; !ok {
			union[tok] = struct{}{}
			continue
		}
		if _, ok := setA[tok]; ok {
			shared++
			delete(setA, tok)
		}
	}
	return float64(shared) / float64(len(union))
}

func pickPrimary(emails []string, normalizedHint string, e *Extractor) string {
	best := ""
	bestScore := -1.0
	for _, email := range emails {
		domain := domainOf(email)
		if _, generic := genericMailDomains[domain]; generic {
			continue
		}
		score := 0.0
		if normalizedHint != "" {
			base := strings.TrimSuffix(domain, "."+topLevel(domain))
			score = e.SimilarityScore(strings.ReplaceAll(base, "-", " "), normalizedHint)
		}
		if score > bestScore {
			bestScore = score
			best = email
		}
	}
	if best == "" {
		// Only generic providers found; better than nothing.
		best = emails[0]
	}
	return best
}

func domainOf(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	return email[idx+1:]
}

func topLevel(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx < 0 {
		return ""
	}
	return domain[idx+1:]
}

func hasAssetSuffix(email string) bool {
	for _, suffix := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}
