package mcp

import (
	"context"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi/idconv"
)

type convertInput struct {
	IDs      []string `json:"ids" validate:"required,min=1,max=200,dive,required" jsonschema:"Identifiers to convert (PMIDs, PMCIDs, DOIs, or manuscript IDs)"`
	IDType   string   `json:"id_type,omitempty" validate:"omitempty,oneof=pmid pmcid doi mid" jsonschema:"Scheme of the supplied IDs; omit to let the service auto-detect"`
	Versions bool     `json:"versions,omitempty" jsonschema:"Include article version history in each record"`
}

type conversionOutput struct {
	RequestedID string `json:"requested_id" jsonschema:"The identifier as submitted"`
	PMID        string `json:"pmid,omitempty" jsonschema:"PubMed ID"`
	PMCID       string `json:"pmcid,omitempty" jsonschema:"PubMed Central ID"`
	DOI         string `json:"doi,omitempty" jsonschema:"Digital Object Identifier"`
	Live        bool   `json:"live" jsonschema:"Whether the record is currently live in PMC"`
	ReleaseDate string `json:"release_date,omitempty" jsonschema:"PMC release date for embargoed articles"`
}

type conversionFailure struct {
	ID    string `json:"id" jsonschema:"The identifier that failed"`
	Error string `json:"error" jsonschema:"Why the service could not resolve it"`
}

type convertOutput struct {
	Conversions []conversionOutput  `json:"conversions" jsonschema:"Successfully resolved identifiers"`
	Failed      []conversionFailure `json:"failed,omitempty" jsonschema:"Identifiers the service could not resolve"`
	Successful  int                 `json:"successful" jsonschema:"Number of resolved identifiers"`
	FailedCount int                 `json:"failed_count" jsonschema:"Number of unresolved identifiers"`
}

type resolveInput struct {
	ID     string `json:"id" validate:"required" jsonschema:"A single identifier in any supported scheme"`
	IDType string `json:"id_type,omitempty" validate:"omitempty,oneof=pmid pmcid doi mid" jsonschema:"Scheme of the ID; omit to detect it from the shape"`
}

type resolveOutput struct {
	DetectedType string           `json:"detected_type" jsonschema:"The scheme the ID was treated as"`
	Conversion   conversionOutput `json:"conversion" jsonschema:"All known aliases of the identifier"`
}

func (s *Server) registerConvertTools() {
	addTool(s, "convert_article_ids",
		"Convert a batch of article identifiers between PMID, PMCID, DOI, and manuscript ID schemes (up to 200 per call).",
		func(ctx context.Context, in convertInput) (convertOutput, error) {
			result, err := s.idconv.Convert(ctx, in.IDs, idconv.Options{
				IDType:   idconv.IDType(in.IDType),
				Versions: in.Versions,
			})
			if err != nil {
				return convertOutput{}, err
			}

			out := convertOutput{
				Successful:  result.Successful,
				FailedCount: result.FailedCount,
			}
			for _, conv := range result.Conversions {
				out.Conversions = append(out.Conversions, toConversionOutput(conv))
			}
			for _, f := range result.Failed {
				out.Failed = append(out.Failed, conversionFailure{ID: f.ID, Error: f.Error})
			}
			return out, nil
		})

	addTool(s, "resolve_article_identifier",
		"Resolve a single article identifier to all of its known aliases, auto-detecting the scheme when not given.",
		func(ctx context.Context, in resolveInput) (resolveOutput, error) {
			idType := idconv.IDType(in.IDType)
			if idType == "" {
				idType = idconv.DetectIDType(in.ID)
			}

			conv, err := s.idconv.Resolve(ctx, in.ID, idType)
			if err != nil {
				return resolveOutput{}, err
			}

			return resolveOutput{
				DetectedType: string(idType),
				Conversion:   toConversionOutput(*conv),
			}, nil
		})
}

func toConversionOutput(conv idconv.Conversion) conversionOutput {
	return conversionOutput{
		RequestedID: conv.RequestedID,
		PMID:        conv.PMID,
		PMCID:       conv.PMCID,
		DOI:         conv.DOI,
		Live:        conv.Live,
		ReleaseDate: conv.ReleaseDate,
	}
}
