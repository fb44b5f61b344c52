package mcp

import (
	"context"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
)

type relatedInput struct {
	ID         string `json:"id" validate:"required" jsonschema:"PMID to find related articles for"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=10000" jsonschema:"Maximum number of related IDs to return (default: 50)"`
}

type relatedOutput struct {
	ID      string   `json:"id" jsonschema:"The source PMID"`
	Related []string `json:"related" jsonschema:"Related article PMIDs, most relevant first"`
}

type linkInput struct {
	ID       string `json:"id" validate:"required" jsonschema:"Source record ID"`
	FromDB   string `json:"from_db,omitempty" jsonschema:"Database the source record lives in (default: pubmed)"`
	ToDB     string `json:"to_db" validate:"required" jsonschema:"Database to find linked records in (pmc, gene, protein, ...)"`
	LinkName string `json:"link_name,omitempty" jsonschema:"Restrict to one link type (e.g. pubmed_pmc, pubmed_pubmed_citedin)"`
}

type linkSetOutput struct {
	Database string   `json:"database" jsonschema:"Target database"`
	LinkName string   `json:"link_name" jsonschema:"The link type"`
	IDs      []string `json:"ids" jsonschema:"Linked record IDs"`
}

type linkOutput struct {
	ID       string          `json:"id" jsonschema:"The source record ID"`
	LinkSets []linkSetOutput `json:"link_sets" jsonschema:"Linked records grouped by database and link type"`
}

type citationInput struct {
	Journal   string `json:"journal" validate:"required" jsonschema:"Journal title"`
	Year      string `json:"year" validate:"required" jsonschema:"Publication year"`
	Volume    string `json:"volume,omitempty" jsonschema:"Journal volume"`
	FirstPage string `json:"first_page,omitempty" jsonschema:"First page of the article"`
	Author    string `json:"author" validate:"required" jsonschema:"Author name, e.g. 'mann bj'"`
	Key       string `json:"key,omitempty" jsonschema:"Caller-chosen key echoed back with the match"`
}

type citMatchInput struct {
	Citations []citationInput `json:"citations" validate:"required,min=1,max=100,dive" jsonschema:"Citations to resolve to PMIDs"`
}

type citationMatchOutput struct {
	Journal   string `json:"journal" jsonschema:"Echoed journal title"`
	Year      string `json:"year" jsonschema:"Echoed publication year"`
	Volume    string `json:"volume,omitempty" jsonschema:"Echoed volume"`
	FirstPage string `json:"first_page,omitempty" jsonschema:"Echoed first page"`
	Author    string `json:"author" jsonschema:"Echoed author"`
	PMID      string `json:"pmid,omitempty" jsonschema:"Resolved PMID, empty when not found"`
	Found     bool   `json:"found" jsonschema:"Whether the citation resolved to a PMID"`
}

type citMatchOutput struct {
	Matches []citationMatchOutput `json:"matches" jsonschema:"One entry per input citation, in order"`
}

func (s *Server) registerLinkTools() {
	addTool(s, "find_related_articles",
		"Find articles related to a given PMID using PubMed's similarity links.",
		func(ctx context.Context, in relatedInput) (relatedOutput, error) {
			result, err := s.eutils.Link(ctx, eutils.LinkRequest{
				FromDB:   "pubmed",
				ToDB:     "pubmed",
				IDs:      []string{in.ID},
				LinkName: "pubmed_pubmed",
			})
			if err != nil {
				return relatedOutput{}, err
			}

			limit := in.MaxResults
			if limit <= 0 {
				limit = s.cfg.DefaultMaxResults
			}

			out := relatedOutput{ID: in.ID}
			for _, ls := range result.LinkSets {
				for _, id := range ls.IDs {
					if id == in.ID {
						continue
					}
					out.Related = append(out.Related, id)
					if len(out.Related) >= limit {
						return out, nil
					}
				}
			}
			return out, nil
		})

	addTool(s, "link_to_databases",
		"Find records linked to an article in other Entrez databases: full texts in PMC, genes, proteins, citing articles.",
		func(ctx context.Context, in linkInput) (linkOutput, error) {
			result, err := s.eutils.Link(ctx, eutils.LinkRequest{
				FromDB:   defaultDB(in.FromDB),
				ToDB:     in.ToDB,
				IDs:      []string{in.ID},
				LinkName: in.LinkName,
			})
			if err != nil {
				return linkOutput{}, err
			}

			out := linkOutput{ID: in.ID}
			for _, ls := range result.LinkSets {
				out.LinkSets = append(out.LinkSets, linkSetOutput{
					Database: ls.DBTo,
					LinkName: ls.LinkName,
					IDs:      ls.IDs,
				})
			}
			return out, nil
		})

	addTool(s, "find_citations_by_authors",
		"Resolve bibliographic citations (journal, year, volume, page, author) to PMIDs via ECitMatch.",
		func(ctx context.Context, in citMatchInput) (citMatchOutput, error) {
			citations := make([]eutils.Citation, 0, len(in.Citations))
			for _, c := range in.Citations {
				citations = append(citations, eutils.Citation{
					Journal:   c.Journal,
					Year:      c.Year,
					Volume:    c.Volume,
					FirstPage: c.FirstPage,
					Author:    c.Author,
					Key:       c.Key,
				})
			}

			result, err := s.eutils.CitMatch(ctx, "pubmed", citations)
			if err != nil {
				return citMatchOutput{}, err
			}

			out := citMatchOutput{Matches: make([]citationMatchOutput, 0, len(result.Matches))}
			for _, m := range result.Matches {
				out.Matches = append(out.Matches, citationMatchOutput{
					Journal:   m.Journal,
					Year:      m.Year,
					Volume:    m.Volume,
					FirstPage: m.FirstPage,
					Author:    m.Author,
					PMID:      m.PMID,
					Found:     m.PMID != "",
				})
			}
			return out, nil
		})
}
