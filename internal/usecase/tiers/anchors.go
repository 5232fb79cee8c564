package tiers

import (
	"regexp"
	"strings"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// Anchor extraction and boosting for the vector-fallback variant.
// Anchors are independent corroborating evidence (a birth date or
// document number embedded in the query); in a compliance context a
// name-only semantic match is weak, a name plus matching DOB is not.

var dobAnchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
}

var idAnchorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)passport\d+`),
	regexp.MustCompile(`(?i)ID\d+`),
	regexp.MustCompile(`\b[A-Z]{2}\d{6}\b`),
}

const (
	dobAnchorBoost = 1.3
	idAnchorBoost  = 1.2

	strongLexicalRatio = 80
	weakLexicalRatio   = 60
	strongLexicalBoost = 1.2
	weakLexicalBoost   = 1.1
)

type anchors struct {
	dobs []string
	ids  []string
}

func (a anchors) empty() bool { return len(a.dobs) == 0 && len(a.ids) == 0 }

// extractAnchors pulls DOB-shaped and ID-shaped substrings out of the
// raw query.
func extractAnchors(query string) anchors {
	var a anchors
	for _, re := range dobAnchorPatterns {
		a.dobs = append(a.dobs, re.FindAllString(query, -1)...)
	}
	for _, re := range idAnchorPatterns {
		for _, m := range re.FindAllString(query, -1) {
			a.ids = append(a.ids, strings.ToLower(m))
		}
	}
	return a
}

// applyAnchorBoosts multiplies hit scores when stored identifiers
// overlap an extracted anchor. DOB corroboration outranks document
// ids.
func applyAnchorBoosts(cands []domain.Candidate, a anchors) {
	if a.empty() {
		return
	}
	for i := range cands {
		c := &cands[i]
		if c.Trace == nil {
			c.Trace = make(map[string]any)
		}
		if dob := c.Metadata["dob"]; dob != "" && overlapsAny(dob, a.dobs) {
			c.Score *= dobAnchorBoost
			c.Trace["anchor_dob"] = true
			continue
		}
		if anchorMatchesID(c, a.ids) {
			c.Score *= idAnchorBoost
			c.Trace["anchor_id"] = true
		}
	}
}

func anchorMatchesID(c *domain.Candidate, ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	fields := []string{strings.ToLower(c.DocID)}
	for _, key := range []string{"passport", "tax_id"} {
		if v := c.Metadata[key]; v != "" {
			fields = append(fields, strings.ToLower(v))
		}
	}
	for _, f := range fields {
		if overlapsAny(f, ids) {
			return true
		}
	}
	return false
}

func overlapsAny(value string, anchs []string) bool {
	for _, a := range anchs {
		if strings.Contains(value, a) || strings.Contains(a, value) {
			return true
		}
	}
	return false
}

// applyLexicalRerank boosts hits whose text is lexically close to the
// query, tightening precision on top of the pure vector distance.
func applyLexicalRerank(query string, cands []domain.Candidate) {
	for i := range cands {
		c := &cands[i]
		best := Ratio(query, c.Text)
		if r := PartialRatio(query, c.Text); r > best {
			best = r
		}
		if r := TokenSortRatio(query, c.Text); r > best {
			best = r
		}

		switch {
		case best > strongLexicalRatio:
			c.Score *= strongLexicalBoost
		case best > weakLexicalRatio:
			c.Score *= weakLexicalBoost
		default:
			continue
		}
		if c.Trace == nil {
			c.Trace = make(map[string]any)
		}
		c.Trace["lexical_best_ratio"] = best
	}
}
