package mcp

import (
	"context"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/bioc"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
)

type summaryInput struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required" jsonschema:"Record IDs to summarize"`
	DB  string   `json:"db,omitempty" validate:"omitempty,oneof=pubmed pmc" jsonschema:"Database the IDs belong to (default: pubmed)"`
}

type articleSummary struct {
	ID       string   `json:"id" jsonschema:"Record ID"`
	Title    string   `json:"title" jsonschema:"Article title"`
	Journal  string   `json:"journal,omitempty" jsonschema:"Journal name"`
	PubDate  string   `json:"pub_date,omitempty" jsonschema:"Publication date"`
	Authors  []string `json:"authors,omitempty" jsonschema:"Author names"`
	DOI      string   `json:"doi,omitempty" jsonschema:"Digital Object Identifier"`
	PMCID    string   `json:"pmcid,omitempty" jsonschema:"PMC ID when the article is in PMC"`
	Volume   string   `json:"volume,omitempty" jsonschema:"Journal volume"`
	Issue    string   `json:"issue,omitempty" jsonschema:"Journal issue"`
	Pages    string   `json:"pages,omitempty" jsonschema:"Page range"`
	PubTypes []string `json:"pub_types,omitempty" jsonschema:"Publication types"`
}

type summaryOutput struct {
	Summaries []articleSummary `json:"summaries" jsonschema:"One summary per resolved ID, in server order"`
}

type fetchInput struct {
	ID      string `json:"id" validate:"required" jsonschema:"Record ID to fetch"`
	DB      string `json:"db,omitempty" validate:"omitempty,oneof=pubmed pmc" jsonschema:"Database the ID belongs to (default: pubmed)"`
	RetType string `json:"ret_type,omitempty" validate:"omitempty,oneof=abstract medline full xml" jsonschema:"Record type to fetch (default: abstract)"`
	RetMode string `json:"ret_mode,omitempty" validate:"omitempty,oneof=text xml" jsonschema:"Wire format (default: xml)"`
}

type fetchOutput struct {
	ID      string `json:"id" jsonschema:"The fetched record ID"`
	Content string `json:"content" jsonschema:"Raw record content in the requested format"`
}

type biocFetchInput struct {
	ID       string `json:"id" validate:"required" jsonschema:"PMID or PMCID of the article"`
	Source   string `json:"source,omitempty" validate:"omitempty,oneof=pubmed pmc" jsonschema:"pubmed for abstracts, pmc for open access full text (default: pubmed)"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=xml json" jsonschema:"BioC wire format to request (default: xml)"`
	Sections bool   `json:"sections,omitempty" jsonschema:"Return named sections instead of one concatenated text"`
}

type biocSection struct {
	SectionType string `json:"section_type" jsonschema:"Section name from BioC infons"`
	Text        string `json:"text" jsonschema:"Section text"`
}

type biocFetchOutput struct {
	ID       string        `json:"id" jsonschema:"The fetched article ID"`
	Source   string        `json:"source" jsonschema:"Which API served the article"`
	Text     string        `json:"text,omitempty" jsonschema:"Concatenated article text"`
	Sections []biocSection `json:"sections,omitempty" jsonschema:"Named article sections"`
}

type batchFetchInput struct {
	IDs     []string `json:"ids" validate:"required,min=1,dive,required" jsonschema:"Record IDs to fetch in one call"`
	DB      string   `json:"db,omitempty" validate:"omitempty,oneof=pubmed pmc" jsonschema:"Database the IDs belong to (default: pubmed)"`
	RetType string   `json:"ret_type,omitempty" validate:"omitempty,oneof=abstract medline full xml" jsonschema:"Record type to fetch (default: abstract)"`
	RetMode string   `json:"ret_mode,omitempty" validate:"omitempty,oneof=text xml" jsonschema:"Wire format (default: xml)"`
}

type batchFetchOutput struct {
	Requested int    `json:"requested" jsonschema:"Number of IDs fetched"`
	Content   string `json:"content" jsonschema:"Raw concatenated records in the requested format"`
}

func (s *Server) registerFetchTools() {
	addTool(s, "fetch_article_summary",
		"Fetch structured summaries (title, journal, authors, DOI) for one or more articles.",
		func(ctx context.Context, in summaryInput) (summaryOutput, error) {
			if len(in.IDs) > s.cfg.MaxBatchSize {
				return summaryOutput{}, &ncbi.BatchTooLargeError{Requested: len(in.IDs), Max: s.cfg.MaxBatchSize}
			}

			result, err := s.eutils.Summary(ctx, defaultDB(in.DB), in.IDs)
			if err != nil {
				return summaryOutput{}, err
			}

			out := summaryOutput{Summaries: make([]articleSummary, 0, len(result.Summaries))}
			for _, doc := range result.Summaries {
				out.Summaries = append(out.Summaries, toArticleSummary(doc))
			}
			return out, nil
		})

	addTool(s, "fetch_full_article",
		"Fetch one article's full record from Entrez in the requested format.",
		func(ctx context.Context, in fetchInput) (fetchOutput, error) {
			content, err := s.eutils.Fetch(ctx, eutils.FetchRequest{
				DB:      defaultDB(in.DB),
				IDs:     []string{in.ID},
				RetType: defaultRetType(in.RetType),
				RetMode: defaultRetMode(in.RetMode),
			})
			if err != nil {
				return fetchOutput{}, err
			}
			return fetchOutput{ID: in.ID, Content: content}, nil
		})

	addTool(s, "fetch_bioc_article",
		"Fetch an article pre-segmented for text mining via the BioC API: PubMed abstracts or PMC open access full texts.",
		func(ctx context.Context, in biocFetchInput) (biocFetchOutput, error) {
			format := bioc.FormatXML
			if in.Format == "json" {
				format = bioc.FormatJSON
			}

			source := in.Source
			if source == "" {
				source = "pubmed"
			}

			var col *bioc.Collection
			var err error
			if source == "pmc" {
				col, err = s.bioc.FetchPMC(ctx, in.ID, format)
			} else {
				col, err = s.bioc.FetchPubMed(ctx, in.ID, format)
			}
			if err != nil {
				return biocFetchOutput{}, err
			}

			out := biocFetchOutput{ID: in.ID, Source: source}
			if in.Sections {
				for _, sec := range bioc.ExtractSections(col) {
					out.Sections = append(out.Sections, biocSection{SectionType: sec.SectionType, Text: sec.Text})
				}
			} else {
				out.Text = bioc.ExtractText(col)
			}
			return out, nil
		})

	addTool(s, "batch_fetch_articles",
		"Fetch many articles' records in a single Entrez call.",
		func(ctx context.Context, in batchFetchInput) (batchFetchOutput, error) {
			if len(in.IDs) > s.cfg.MaxBatchSize {
				return batchFetchOutput{}, &ncbi.BatchTooLargeError{Requested: len(in.IDs), Max: s.cfg.MaxBatchSize}
			}

			content, err := s.eutils.Fetch(ctx, eutils.FetchRequest{
				DB:      defaultDB(in.DB),
				IDs:     in.IDs,
				RetType: defaultRetType(in.RetType),
				RetMode: defaultRetMode(in.RetMode),
				RetMax:  len(in.IDs),
			})
			if err != nil {
				return batchFetchOutput{}, err
			}
			return batchFetchOutput{Requested: len(in.IDs), Content: content}, nil
		})
}

func defaultDB(db string) string {
	if db == "" {
		return "pubmed"
	}
	return db
}

func defaultRetType(t string) string {
	if t == "" {
		return "abstract"
	}
	return t
}

func defaultRetMode(m string) string {
	if m == "" {
		return "xml"
	}
	return m
}

func toArticleSummary(doc eutils.DocumentSummary) articleSummary {
	summary := articleSummary{
		ID:       doc.UID,
		Title:    doc.Title,
		Journal:  doc.FullJournalName,
		PubDate:  doc.PubDate,
		Volume:   doc.Volume,
		Issue:    doc.Issue,
		Pages:    doc.Pages,
		PubTypes: doc.PubType,
	}
	if summary.Journal == "" {
		summary.Journal = doc.Source
	}
	for _, author := range doc.Authors {
		summary.Authors = append(summary.Authors, author.Name)
	}
	for _, id := range doc.ArticleIDs {
		switch id.IDType {
		case "doi":
			summary.DOI = id.Value
		case "pmc", "pmcid":
			summary.PMCID = id.Value
		}
	}
	return summary
}
