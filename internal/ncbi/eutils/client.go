// Package eutils is a client for the NCBI Entrez E-utilities API. It covers
// the full endpoint surface (ESearch, ESummary, EFetch, EPost, ELink,
// EGQuery, ESpell, ECitMatch) and the History server workflow used to chain
// operations without re-downloading intermediate result sets.
package eutils

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

const (
	// DefaultBaseURL is the base URL for the NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRetMax is the default page size for searches.
	DefaultRetMax = 50

	// MaxSearchResults is the largest page Entrez will return per request.
	MaxSearchResults = 10000

	// DefaultFetchMax is the default page size for fetches.
	DefaultFetchMax = 500
)

// Client calls the E-utilities endpoints through the shared request core.
type Client struct {
	core   *ncbi.Client
	logger zerolog.Logger
}

// New creates an E-utilities client.
func New(cfg ncbi.ClientConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		core:   ncbi.NewClient("eutils", cfg, logger, metrics),
		logger: logger.With().Str("component", "eutils").Logger(),
	}
}

// NewWithCore creates a client over an existing request core. Useful for
// sharing one rate limiter across API clients and for tests.
func NewWithCore(core *ncbi.Client, logger zerolog.Logger) *Client {
	return &Client{
		core:   core,
		logger: logger.With().Str("component", "eutils").Logger(),
	}
}

// Core exposes the underlying request core, e.g. to share its limiter.
func (c *Client) Core() *ncbi.Client { return c.core }

// Search queries a database with ESearch.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	retmax := req.RetMax
	if retmax <= 0 {
		retmax = DefaultRetMax
	}
	if retmax > MaxSearchResults {
		retmax = MaxSearchResults
	}

	params := url.Values{}
	params.Set("db", req.DB)
	params.Set("term", req.Query)
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("retstart", strconv.Itoa(req.RetStart))
	params.Set("retmode", "json")
	if req.Sort != "" {
		params.Set("sort", req.Sort)
	}
	if req.UseHistory {
		params.Set("usehistory", "y")
	}
	if req.DateType != "" {
		params.Set("datetype", req.DateType)
	}
	if req.MinDate != "" {
		params.Set("mindate", req.MinDate)
	}
	if req.MaxDate != "" {
		params.Set("maxdate", req.MaxDate)
	}

	resp, err := c.core.Get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	return parseSearchResponse(resp.Body)
}

// Summary retrieves ESummary v2.0 records for the given UIDs.
func (c *Client) Summary(ctx context.Context, db string, ids []string) (*SummaryResult, error) {
	if len(ids) == 0 {
		return &SummaryResult{}, nil
	}

	params := url.Values{}
	params.Set("db", db)
	params.Set("id", strings.Join(ids, ","))
	params.Set("version", "2.0")
	params.Set("retmode", "json")

	resp, err := c.core.Get(ctx, "esummary.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esummary: %w", err)
	}

	return parseSummaryResponse(resp.Body)
}

// Fetch downloads full records with EFetch and returns the raw response
// text. The record format depends on RetType/RetMode, so no parsing happens
// here.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	params := url.Values{}
	params.Set("db", req.DB)
	if req.RetType != "" {
		params.Set("rettype", req.RetType)
	}
	if req.RetMode != "" {
		params.Set("retmode", req.RetMode)
	}

	retmax := req.RetMax
	if retmax <= 0 {
		retmax = DefaultFetchMax
	}
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("retstart", strconv.Itoa(req.RetStart))

	switch {
	case len(req.IDs) > 0:
		params.Set("id", strings.Join(req.IDs, ","))
	case req.QueryKey != "" && req.WebEnv != "":
		params.Set("query_key", req.QueryKey)
		params.Set("WebEnv", req.WebEnv)
	default:
		return "", fmt.Errorf("%w: fetch requires ids or query_key/web_env", ncbi.ErrInvalidInput)
	}

	resp, err := c.core.Get(ctx, "efetch.fcgi", params)
	if err != nil {
		return "", fmt.Errorf("efetch: %w", err)
	}

	return resp.Text(), nil
}

// Post uploads UIDs to the History server with EPost. Passing an existing
// webEnv appends the set to that session instead of creating a new one.
func (c *Client) Post(ctx context.Context, db string, ids []string, webEnv string) (*PostResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: post requires at least one id", ncbi.ErrInvalidInput)
	}

	form := url.Values{}
	form.Set("db", db)
	form.Set("id", strings.Join(ids, ","))
	if webEnv != "" {
		form.Set("WebEnv", webEnv)
	}

	resp, err := c.core.PostForm(ctx, "epost.fcgi", nil, form)
	if err != nil {
		return nil, fmt.Errorf("epost: %w", err)
	}

	var parsed struct {
		XMLName  xml.Name `xml:"ePostResult"`
		QueryKey string   `xml:"QueryKey"`
		WebEnv   string   `xml:"WebEnv"`
	}
	if err := xml.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("parse epost response: %w", err)
	}

	return &PostResult{QueryKey: parsed.QueryKey, WebEnv: parsed.WebEnv}, nil
}

// Link finds related records across databases with ELink.
func (c *Client) Link(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	cmd := req.Cmd
	if cmd == "" {
		cmd = "neighbor"
	}

	params := url.Values{}
	params.Set("dbfrom", req.FromDB)
	params.Set("db", req.ToDB)
	params.Set("cmd", cmd)
	params.Set("retmode", "json")
	if req.LinkName != "" {
		params.Set("linkname", req.LinkName)
	}

	switch {
	case len(req.IDs) > 0:
		params.Set("id", strings.Join(req.IDs, ","))
	case req.QueryKey != "" && req.WebEnv != "":
		params.Set("query_key", req.QueryKey)
		params.Set("WebEnv", req.WebEnv)
	default:
		return nil, fmt.Errorf("%w: link requires ids or query_key/web_env", ncbi.ErrInvalidInput)
	}

	resp, err := c.core.Get(ctx, "elink.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("elink: %w", err)
	}

	return parseLinkResponse(resp.Body)
}

// GlobalQuery counts hits for a term across all Entrez databases with
// EGQuery.
func (c *Client) GlobalQuery(ctx context.Context, term string) (*GlobalQueryResult, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("retmode", "xml")

	resp, err := c.core.Get(ctx, "egquery.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("egquery: %w", err)
	}

	return parseGlobalQueryResponse(resp.Body)
}

// Spell returns spelling suggestions for a query with ESpell.
func (c *Client) Spell(ctx context.Context, db, term string) (*SpellResult, error) {
	params := url.Values{}
	params.Set("db", db)
	params.Set("term", term)

	resp, err := c.core.Get(ctx, "espell.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("espell: %w", err)
	}

	return parseSpellResponse(resp.Body)
}

// CitMatch resolves citation strings to PMIDs with ECitMatch.
func (c *Client) CitMatch(ctx context.Context, db string, citations []Citation) (*CitMatchResult, error) {
	if len(citations) == 0 {
		return &CitMatchResult{}, nil
	}

	var bdata strings.Builder
	for _, cit := range citations {
		fmt.Fprintf(&bdata, "%s|%s|%s|%s|%s|%s|\n",
			cit.Journal, cit.Year, cit.Volume, cit.FirstPage, cit.Author, cit.Key)
	}

	form := url.Values{}
	form.Set("db", db)
	form.Set("bdata", bdata.String())
	form.Set("retmode", "xml")

	resp, err := c.core.PostForm(ctx, "ecitmatch.cgi", nil, form)
	if err != nil {
		return nil, fmt.Errorf("ecitmatch: %w", err)
	}

	return parseCitMatchResponse(resp.Text()), nil
}

func parseSearchResponse(body []byte) (*SearchResult, error) {
	var parsed struct {
		ESearchResult struct {
			Count            string   `json:"count"`
			RetMax           string   `json:"retmax"`
			RetStart         string   `json:"retstart"`
			IDList           []string `json:"idlist"`
			QueryKey         string   `json:"querykey"`
			WebEnv           string   `json:"webenv"`
			QueryTranslation string   `json:"querytranslation"`
			ErrorList        *struct {
				PhrasesNotFound []string `json:"phrasesnotfound"`
			} `json:"errorlist"`
		} `json:"esearchresult"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse esearch response: %w", err)
	}

	r := parsed.ESearchResult
	return &SearchResult{
		Count:            atoi(r.Count),
		IDs:              r.IDList,
		QueryKey:         r.QueryKey,
		WebEnv:           r.WebEnv,
		QueryTranslation: r.QueryTranslation,
		RetMax:           atoi(r.RetMax),
		RetStart:         atoi(r.RetStart),
	}, nil
}

func parseSummaryResponse(body []byte) (*SummaryResult, error) {
	var parsed struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse esummary response: %w", err)
	}

	var uids []string
	if raw, ok := parsed.Result["uids"]; ok {
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, fmt.Errorf("parse esummary uids: %w", err)
		}
	}

	result := &SummaryResult{UIDs: uids}
	for _, uid := range uids {
		raw, ok := parsed.Result[uid]
		if !ok {
			continue
		}
		var doc DocumentSummary
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse esummary record %s: %w", uid, err)
		}
		if doc.UID == "" {
			doc.UID = uid
		}
		result.Summaries = append(result.Summaries, doc)
	}

	return result, nil
}

func parseLinkResponse(body []byte) (*LinkResult, error) {
	var parsed struct {
		LinkSets []struct {
			WebEnv     string `json:"webenv"`
			LinkSetDBs []struct {
				DBTo     string   `json:"dbto"`
				LinkName string   `json:"linkname"`
				Links    []string `json:"links"`
			} `json:"linksetdbs"`
			LinkSetDBHistories []struct {
				DBTo     string `json:"dbto"`
				LinkName string `json:"linkname"`
				QueryKey string `json:"querykey"`
			} `json:"linksetdbhistories"`
		} `json:"linksets"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse elink response: %w", err)
	}

	result := &LinkResult{}
	for _, ls := range parsed.LinkSets {
		if ls.WebEnv != "" {
			result.WebEnv = ls.WebEnv
		}
		for _, db := range ls.LinkSetDBs {
			result.LinkSets = append(result.LinkSets, LinkSet{
				DBTo:     db.DBTo,
				LinkName: db.LinkName,
				IDs:      db.Links,
			})
		}
		for _, h := range ls.LinkSetDBHistories {
			if h.QueryKey != "" {
				result.QueryKey = h.QueryKey
			}
			result.LinkSets = append(result.LinkSets, LinkSet{
				DBTo:     h.DBTo,
				LinkName: h.LinkName,
			})
		}
	}

	return result, nil
}

func parseGlobalQueryResponse(body []byte) (*GlobalQueryResult, error) {
	var parsed struct {
		XMLName xml.Name `xml:"Result"`
		Items   []struct {
			DBName   string `xml:"DbName"`
			MenuName string `xml:"MenuName"`
			Count    string `xml:"Count"`
			Status   string `xml:"Status"`
		} `xml:"eGQueryResult>ResultItem"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse egquery response: %w", err)
	}

	result := &GlobalQueryResult{}
	for _, item := range parsed.Items {
		result.Databases = append(result.Databases, DatabaseCount{
			DBName:   item.DBName,
			MenuName: item.MenuName,
			Count:    atoi(item.Count),
			Status:   item.Status,
		})
	}

	return result, nil
}

func parseSpellResponse(body []byte) (*SpellResult, error) {
	var parsed struct {
		XMLName        xml.Name `xml:"eSpellResult"`
		Query          string   `xml:"Query"`
		CorrectedQuery string   `xml:"CorrectedQuery"`
		Replaced       []string `xml:"SpelledQuery>Replaced"`
	}
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse espell response: %w", err)
	}

	return &SpellResult{
		Query:          parsed.Query,
		CorrectedQuery: parsed.CorrectedQuery,
		ReplacedTerms:  parsed.Replaced,
	}, nil
}

// parseCitMatchResponse parses the pipe-delimited text ECitMatch returns: one
// echoed citation per line with the resolved PMID (or NOT_FOUND) appended.
func parseCitMatchResponse(text string) *CitMatchResult {
	result := &CitMatchResult{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 6 {
			continue
		}
		match := CitationMatch{
			Journal:   parts[0],
			Year:      parts[1],
			Volume:    parts[2],
			FirstPage: parts[3],
			Author:    parts[4],
		}
		pmid := strings.TrimSpace(parts[len(parts)-1])
		if pmid == "" && len(parts) >= 7 {
			pmid = strings.TrimSpace(parts[len(parts)-2])
		}
		if pmid != "" && pmid != "NOT_FOUND" {
			match.PMID = pmid
		}
		result.Matches = append(result.Matches, match)
	}
	return result
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
