package mcp

import (
	"context"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
	"github.com/helixir/pubmed-mcp-service/internal/query"
)

type searchInput struct {
	Query      string `json:"query" validate:"required" jsonschema:"Search query in E-utilities syntax"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=10000" jsonschema:"Maximum number of IDs to return (default: 50)"`
	Start      int    `json:"start,omitempty" validate:"omitempty,min=0" jsonschema:"Result offset for pagination"`
	Sort       string `json:"sort,omitempty" jsonschema:"Sort order (relevance, pub_date, first_author, journal)"`
	DateType   string `json:"date_type,omitempty" validate:"omitempty,oneof=pdat edat mdat" jsonschema:"Date field the range filters on (pdat, edat, mdat)"`
	MinDate    string `json:"min_date,omitempty" jsonschema:"Start of the date range (YYYY or YYYY/MM/DD)"`
	MaxDate    string `json:"max_date,omitempty" jsonschema:"End of the date range (YYYY or YYYY/MM/DD)"`
}

type searchOutput struct {
	Query            string   `json:"query" jsonschema:"The query that was executed"`
	Count            int      `json:"count" jsonschema:"Total number of matching records"`
	IDs              []string `json:"ids" jsonschema:"Page of matching record IDs"`
	QueryTranslation string   `json:"query_translation,omitempty" jsonschema:"How Entrez interpreted the query"`
	Start            int      `json:"start" jsonschema:"Offset of this page"`
}

type meshSearchInput struct {
	Term       string   `json:"term" validate:"required" jsonschema:"MeSH descriptor, e.g. Neoplasms"`
	Qualifiers []string `json:"qualifiers,omitempty" jsonschema:"MeSH qualifiers (therapy, diagnosis, ...), OR-combined"`
	NoExplode  bool     `json:"no_explode,omitempty" jsonschema:"Do not include descendant terms in the MeSH hierarchy"`
	MaxResults int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=10000" jsonschema:"Maximum number of IDs to return (default: 50)"`
}

type advancedSearchInput struct {
	Query            string   `json:"query" validate:"required" jsonschema:"Base query in E-utilities syntax"`
	DateStart        string   `json:"date_start,omitempty" jsonschema:"Earliest publication date (YYYY or YYYY-MM-DD)"`
	DateEnd          string   `json:"date_end,omitempty" jsonschema:"Latest publication date (YYYY or YYYY-MM-DD)"`
	PublicationTypes []string `json:"publication_types,omitempty" jsonschema:"Publication type filters (review, clinical_trial, meta_analysis, ...)"`
	Language         string   `json:"language,omitempty" jsonschema:"Language filter (english, spanish, ...)"`
	FreeFullTextOnly bool     `json:"free_full_text_only,omitempty" jsonschema:"Restrict to articles with free full text"`
	OpenAccessOnly   bool     `json:"open_access_only,omitempty" jsonschema:"Restrict to the PMC open access subset"`
	MaxResults       int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=10000" jsonschema:"Maximum number of IDs to return (default: 50)"`
	Sort             string   `json:"sort,omitempty" jsonschema:"Sort order (relevance, pub_date)"`
}

type globalSearchInput struct {
	Term string `json:"term" validate:"required" jsonschema:"Term to count across all Entrez databases"`
}

type databaseHits struct {
	Database string `json:"database" jsonschema:"Entrez database name"`
	MenuName string `json:"menu_name,omitempty" jsonschema:"Human-readable database name"`
	Count    int    `json:"count" jsonschema:"Number of matching records"`
	Status   string `json:"status,omitempty" jsonschema:"Per-database query status"`
}

type globalSearchOutput struct {
	Term      string         `json:"term" jsonschema:"The term that was counted"`
	Databases []databaseHits `json:"databases" jsonschema:"Hit counts per database"`
}

func (s *Server) registerSearchTools() {
	addTool(s, "pubmed_search",
		"Search PubMed for articles. Supports full E-utilities query syntax including field tags, boolean operators, and date filters.",
		func(ctx context.Context, in searchInput) (searchOutput, error) {
			return s.runSearch(ctx, "pubmed", in)
		})

	addTool(s, "pmc_search",
		"Search PubMed Central (PMC) for full-text open access articles.",
		func(ctx context.Context, in searchInput) (searchOutput, error) {
			return s.runSearch(ctx, "pmc", in)
		})

	addTool(s, "mesh_term_search",
		"Search PubMed by MeSH descriptor, optionally restricted to qualifiers and with hierarchy explosion control.",
		func(ctx context.Context, in meshSearchInput) (searchOutput, error) {
			q := query.MeSH(in.Term, in.Qualifiers, !in.NoExplode)
			return s.runSearch(ctx, "pubmed", searchInput{
				Query:      q,
				MaxResults: in.MaxResults,
			})
		})

	addTool(s, "advanced_search",
		"Search PubMed with structured filters: date range, publication types, language, and free full text / open access subsets.",
		func(ctx context.Context, in advancedSearchInput) (searchOutput, error) {
			q := query.Advanced(in.Query, query.Filters{
				DateStart:        in.DateStart,
				DateEnd:          in.DateEnd,
				PublicationTypes: in.PublicationTypes,
				Language:         in.Language,
				FreeFullTextOnly: in.FreeFullTextOnly,
				OpenAccessOnly:   in.OpenAccessOnly,
			})
			return s.runSearch(ctx, "pubmed", searchInput{
				Query:      q,
				MaxResults: in.MaxResults,
				Sort:       in.Sort,
			})
		})

	addTool(s, "global_search",
		"Count hits for a term across every Entrez database to find where relevant records live.",
		func(ctx context.Context, in globalSearchInput) (globalSearchOutput, error) {
			result, err := s.eutils.GlobalQuery(ctx, in.Term)
			if err != nil {
				return globalSearchOutput{}, err
			}

			out := globalSearchOutput{Term: in.Term}
			for _, db := range result.Databases {
				out.Databases = append(out.Databases, databaseHits{
					Database: db.DBName,
					MenuName: db.MenuName,
					Count:    db.Count,
					Status:   db.Status,
				})
			}
			return out, nil
		})
}

func (s *Server) runSearch(ctx context.Context, db string, in searchInput) (searchOutput, error) {
	retmax := in.MaxResults
	if retmax <= 0 {
		retmax = s.cfg.DefaultMaxResults
	}

	result, err := s.eutils.Search(ctx, eutils.SearchRequest{
		DB:       db,
		Query:    in.Query,
		RetMax:   retmax,
		RetStart: in.Start,
		Sort:     in.Sort,
		DateType: in.DateType,
		MinDate:  in.MinDate,
		MaxDate:  in.MaxDate,
	})
	if err != nil {
		return searchOutput{}, err
	}

	return searchOutput{
		Query:            in.Query,
		Count:            result.Count,
		IDs:              result.IDs,
		QueryTranslation: result.QueryTranslation,
		Start:            result.RetStart,
	}, nil
}
