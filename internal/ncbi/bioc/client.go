// Package bioc is a client for the NCBI BioC RESTful APIs, which serve
// PubMed abstracts and PMC Open Access full texts pre-segmented for text
// mining: passage-level sections, sentence boundaries, and infon metadata.
package bioc

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

// DefaultBaseURL is the base URL for the BioC RESTful endpoints.
const DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/research/bionlp/RESTful"

// Format selects the BioC wire encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// Sentence is a sentence boundary within a passage.
type Sentence struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// Passage is one segment of a document: a title, the abstract, or a named
// full-text section. Infons carries BioC metadata such as section_type.
type Passage struct {
	Offset    int               `json:"offset"`
	Text      string            `json:"text"`
	Infons    map[string]string `json:"infons"`
	Sentences []Sentence        `json:"sentences,omitempty"`
}

// Document is one article in a BioC collection.
type Document struct {
	ID       string    `json:"id"`
	Passages []Passage `json:"passages"`
}

// Section is a named slice of article text extracted from passages.
type Section struct {
	SectionType string `json:"section_type"`
	Text        string `json:"text"`
}

// Collection is a parsed BioC response.
type Collection struct {
	Source     string     `json:"source"`
	Date       string     `json:"date"`
	Documents  []Document `json:"documents"`
	Format     string     `json:"format"`
	Identifier string     `json:"identifier"`
}

// Client fetches BioC documents through the shared request core.
type Client struct {
	core   *ncbi.Client
	logger zerolog.Logger
}

// New creates a BioC client.
func New(cfg ncbi.ClientConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		core:   ncbi.NewClient("bioc", cfg, logger, metrics),
		logger: logger.With().Str("component", "bioc").Logger(),
	}
}

// NewWithCore creates a client over an existing request core.
func NewWithCore(core *ncbi.Client, logger zerolog.Logger) *Client {
	return &Client{
		core:   core,
		logger: logger.With().Str("component", "bioc").Logger(),
	}
}

// Core exposes the underlying request core.
func (c *Client) Core() *ncbi.Client { return c.core }

// FetchPubMed retrieves a PubMed abstract in BioC format.
func (c *Client) FetchPubMed(ctx context.Context, pmid string, format Format) (*Collection, error) {
	endpoint := fmt.Sprintf("pubmed.cgi/BioC_%s/%s/unicode", normalizeFormat(format), pmid)

	resp, err := c.core.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, c.classifyFetchError(err, "PMID", pmid)
	}

	return parseCollection(resp.Body, format, pmid)
}

// FetchPMC retrieves a PMC Open Access full text in BioC format. The PMC
// prefix on the identifier is optional.
func (c *Client) FetchPMC(ctx context.Context, pmcid string, format Format) (*Collection, error) {
	if !strings.HasPrefix(strings.ToUpper(pmcid), "PMC") {
		pmcid = "PMC" + pmcid
	}
	endpoint := fmt.Sprintf("pmcoa.cgi/BioC_%s/%s/unicode", normalizeFormat(format), pmcid)

	resp, err := c.core.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, c.classifyFetchError(err, "PMCID", pmcid)
	}

	return parseCollection(resp.Body, format, pmcid)
}

// classifyFetchError upgrades a bare 404 into a NotFoundError naming the
// requested article.
func (c *Client) classifyFetchError(err error, idType, id string) error {
	var apiErr *ncbi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &ncbi.NotFoundError{Entity: "article", ID: fmt.Sprintf("%s %s", idType, id)}
	}
	return err
}

// ExtractText concatenates every passage's text, separated by blank lines.
func ExtractText(col *Collection) string {
	var texts []string
	for _, doc := range col.Documents {
		for _, p := range doc.Passages {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
	}
	return strings.Join(texts, "\n\n")
}

// ExtractSections returns the passages as named sections. The section name
// comes from the section_type infon, falling back to type, then "unknown".
func ExtractSections(col *Collection) []Section {
	var sections []Section
	for _, doc := range col.Documents {
		for _, p := range doc.Passages {
			if p.Text == "" {
				continue
			}
			sectionType := p.Infons["section_type"]
			if sectionType == "" {
				sectionType = p.Infons["type"]
			}
			if sectionType == "" {
				sectionType = "unknown"
			}
			sections = append(sections, Section{SectionType: sectionType, Text: p.Text})
		}
	}
	return sections
}

func normalizeFormat(f Format) string {
	if strings.EqualFold(string(f), string(FormatJSON)) {
		return "json"
	}
	return "xml"
}

func parseCollection(body []byte, format Format, identifier string) (*Collection, error) {
	if normalizeFormat(format) == "json" {
		return parseJSON(body, identifier)
	}
	return parseXML(body, identifier)
}

// xmlInfon is a BioC <infon key="...">value</infon> element.
type xmlInfon struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

func parseXML(body []byte, identifier string) (*Collection, error) {
	var parsed struct {
		XMLName   xml.Name `xml:"collection"`
		Source    string   `xml:"source"`
		Date      string   `xml:"date"`
		Documents []struct {
			ID       string `xml:"id"`
			Passages []struct {
				Infons    []xmlInfon `xml:"infon"`
				Offset    int        `xml:"offset"`
				Text      string     `xml:"text"`
				Sentences []struct {
					Offset int    `xml:"offset"`
					Text   string `xml:"text"`
				} `xml:"sentence"`
			} `xml:"passage"`
		} `xml:"document"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse bioc xml: %w", err)
	}

	col := &Collection{
		Source:     parsed.Source,
		Date:       parsed.Date,
		Format:     "bioc_xml",
		Identifier: identifier,
	}
	for _, d := range parsed.Documents {
		doc := Document{ID: d.ID}
		for _, p := range d.Passages {
			passage := Passage{
				Offset: p.Offset,
				Text:   p.Text,
				Infons: make(map[string]string, len(p.Infons)),
			}
			for _, in := range p.Infons {
				passage.Infons[in.Key] = in.Value
			}
			for _, s := range p.Sentences {
				passage.Sentences = append(passage.Sentences, Sentence{Offset: s.Offset, Text: s.Text})
			}
			doc.Passages = append(doc.Passages, passage)
		}
		col.Documents = append(col.Documents, doc)
	}

	return col, nil
}

// parseJSON handles both shapes the BioC API returns: a single collection
// object, or a bare list of collections/documents.
func parseJSON(body []byte, identifier string) (*Collection, error) {
	trimmed := strings.TrimSpace(string(body))

	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("parse bioc json: %w", err)
		}

		col := &Collection{Source: "BioC API", Format: "bioc_json", Identifier: identifier}
		for _, raw := range items {
			var wrapper struct {
				Documents []Document `json:"documents"`
			}
			if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Documents) > 0 {
				col.Documents = append(col.Documents, wrapper.Documents...)
				continue
			}
			var doc Document
			if err := json.Unmarshal(raw, &doc); err == nil {
				col.Documents = append(col.Documents, doc)
			}
		}
		return col, nil
	}

	var col Collection
	if err := json.Unmarshal(body, &col); err != nil {
		return nil, fmt.Errorf("parse bioc json: %w", err)
	}
	col.Format = "bioc_json"
	col.Identifier = identifier
	return &col, nil
}
