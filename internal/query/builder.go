// Package query assembles PubMed search strings in E-utilities syntax:
// field-tagged terms, date ranges, MeSH hierarchy lookups, boolean
// combinations, and the filter tags for advanced searches.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// fieldTags maps friendly field names to NCBI search field tags.
var fieldTags = map[string]string{
	"title":            "ti",
	"abstract":         "ab",
	"title_abstract":   "tiab",
	"author":           "au",
	"journal":          "ta",
	"publication_date": "dp",
	"mesh":             "mh",
	"text_words":       "tw",
	"publication_type": "pt",
	"language":         "la",
	"affiliation":      "ad",
	"all_fields":       "all",
}

// publicationTypes maps friendly names to PubMed publication type values.
var publicationTypes = map[string]string{
	"review":                      "Review",
	"clinical_trial":              "Clinical Trial",
	"meta_analysis":               "Meta-Analysis",
	"systematic_review":           "Systematic Review",
	"case_report":                 "Case Reports",
	"randomized_controlled_trial": "Randomized Controlled Trial",
	"observational_study":         "Observational Study",
	"comparative_study":           "Comparative Study",
}

// languageCodes maps language names to MEDLINE language codes.
var languageCodes = map[string]string{
	"english":  "eng",
	"spanish":  "spa",
	"french":   "fre",
	"german":   "ger",
	"japanese": "jpn",
	"chinese":  "chi",
}

// Term is one clause of a boolean query.
type Term struct {
	// Term is the search text.
	Term string

	// Field optionally restricts the term to a field; friendly names
	// (title, abstract, ...) are mapped to NCBI tags, unrecognized values
	// pass through as literal tags.
	Field string

	// Operator joins this term to the previous one: AND, OR, or NOT.
	// Ignored on the first term; defaults to AND.
	Operator string
}

// FieldTag resolves a friendly field name to its NCBI tag, passing through
// values that are already tags.
func FieldTag(field string) string {
	if tag, ok := fieldTags[strings.ToLower(field)]; ok {
		return tag
	}
	return field
}

// Field tags a term with a search field: Field("cancer", "title") returns
// "cancer[ti]".
func Field(term, field string) string {
	return fmt.Sprintf("%s[%s]", term, FieldTag(field))
}

// DateRange builds a date range clause over the given date field (dp for
// publication date, edat for Entrez date). Open ends default to 1800 and
// 3000. Dates may be YYYY, YYYY-MM-DD, or YYYY/MM/DD. Returns "" when both
// ends are empty.
func DateRange(start, end, field string) string {
	if start == "" && end == "" {
		return ""
	}
	if field == "" {
		field = "dp"
	}

	s := "1800"
	if start != "" {
		s = normalizeDate(start)
	}
	e := "3000"
	if end != "" {
		e = normalizeDate(end)
	}

	return fmt.Sprintf("%s:%s[%s]", s, e, field)
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func normalizeDate(s string) string {
	if isoDate.MatchString(s) {
		return strings.ReplaceAll(s, "-", "/")
	}
	return s
}

// MeSH builds a MeSH descriptor clause. explode includes the full subtree
// below the descriptor; qualifiers (therapy, prevention, ...) expand to an
// OR across descriptor/qualifier pairs.
func MeSH(term string, qualifiers []string, explode bool) string {
	tag := "mh"
	if !explode {
		tag = "mh:noexp"
	}

	if len(qualifiers) > 0 {
		parts := make([]string, 0, len(qualifiers))
		for _, q := range qualifiers {
			parts = append(parts, fmt.Sprintf("%s/%s[%s]", term, q, tag))
		}
		return strings.Join(parts, " OR ")
	}

	return fmt.Sprintf("%s[%s]", term, tag)
}

// Boolean combines terms into one query string, joining each clause with its
// operator.
func Boolean(terms []Term) string {
	if len(terms) == 0 {
		return ""
	}

	var parts []string
	for i, t := range terms {
		clause := t.Term
		if t.Field != "" {
			clause = Field(t.Term, t.Field)
		}

		if i > 0 {
			op := strings.ToUpper(t.Operator)
			if op == "" {
				op = "AND"
			}
			parts = append(parts, op)
		}
		parts = append(parts, clause)
	}

	return strings.Join(parts, " ")
}

// Filters holds the optional restrictions an advanced search can layer onto
// a base query.
type Filters struct {
	DateStart        string
	DateEnd          string
	PublicationTypes []string
	Language         string
	FreeFullTextOnly bool
	OpenAccessOnly   bool
}

// Advanced wraps a base query with filter clauses, all joined by AND.
func Advanced(base string, f Filters) string {
	parts := []string{fmt.Sprintf("(%s)", base)}

	if dr := DateRange(f.DateStart, f.DateEnd, "dp"); dr != "" {
		parts = append(parts, dr)
	}

	if len(f.PublicationTypes) > 0 {
		ptParts := make([]string, 0, len(f.PublicationTypes))
		for _, pt := range f.PublicationTypes {
			mapped, ok := publicationTypes[strings.ToLower(pt)]
			if !ok {
				mapped = pt
			}
			ptParts = append(ptParts, mapped+"[pt]")
		}
		if len(ptParts) == 1 {
			parts = append(parts, ptParts[0])
		} else {
			parts = append(parts, fmt.Sprintf("(%s)", strings.Join(ptParts, " OR ")))
		}
	}

	if f.Language != "" {
		code, ok := languageCodes[strings.ToLower(f.Language)]
		if !ok {
			code = f.Language
		}
		parts = append(parts, code+"[la]")
	}

	if f.FreeFullTextOnly {
		parts = append(parts, "free full text[sb]")
	}
	if f.OpenAccessOnly {
		parts = append(parts, "pubmed pmc open access[sb]")
	}

	return strings.Join(parts, " AND ")
}

// Author builds an author-centric query, optionally bounded by a publication
// date range. Names work best as "LastName Initials".
func Author(name, dateStart, dateEnd string) string {
	q := fmt.Sprintf("%q[au]", name)
	if dr := DateRange(dateStart, dateEnd, "dp"); dr != "" {
		return q + " AND " + dr
	}
	return q
}

// Validation reports structural problems in a query string.
type Validation struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Query       string   `json:"query"`
}

var (
	emptyTag = regexp.MustCompile(`\[\s*\]`)
	boolOp   = regexp.MustCompile(`(?i)\b(and|or|not)\b`)
)

// Validate checks a query string for the syntax mistakes that make Entrez
// silently misinterpret searches: unbalanced parentheses or quotes, empty
// field tags, and lowercase boolean operators.
func Validate(q string) Validation {
	v := Validation{Query: q}

	if strings.Count(q, "(") != strings.Count(q, ")") {
		v.Issues = append(v.Issues, "Unbalanced parentheses")
		v.Suggestions = append(v.Suggestions, "Check that all parentheses are properly closed")
	}

	if strings.Count(q, `"`)%2 != 0 {
		v.Issues = append(v.Issues, "Unbalanced quotes")
		v.Suggestions = append(v.Suggestions, "Check that all quoted phrases have closing quotes")
	}

	if emptyTag.MatchString(q) {
		v.Issues = append(v.Issues, "Empty field tags found")
		v.Suggestions = append(v.Suggestions, "Remove empty brackets or add field names")
	}

	for _, m := range boolOp.FindAllStringSubmatch(q, -1) {
		op := strings.ToUpper(m[1])
		if m[1] == op {
			continue
		}
		v.Issues = append(v.Issues, fmt.Sprintf("Boolean operator %q should be uppercase", m[1]))
		v.Suggestions = append(v.Suggestions, fmt.Sprintf("Use %q for boolean operators", op))
	}

	v.Valid = len(v.Issues) == 0
	return v
}
