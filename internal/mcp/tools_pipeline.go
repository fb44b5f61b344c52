package mcp

import (
	"context"
	"fmt"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
)

type pipelineStepInput struct {
	Operation string `json:"operation" validate:"required,oneof=search link" jsonschema:"What the step does: search or link"`

	// Search steps.
	Query       string `json:"query,omitempty" jsonschema:"Search query (search steps)"`
	DB          string `json:"db,omitempty" jsonschema:"Database to search or link into (default: pubmed)"`
	CombineWith string `json:"combine_with,omitempty" jsonschema:"Query key of an earlier step to combine with (search steps)"`
	Operator    string `json:"operator,omitempty" validate:"omitempty,oneof=AND OR NOT" jsonschema:"How to combine with the earlier step (default: AND)"`

	// Link steps.
	FromDB   string `json:"from_db,omitempty" jsonschema:"Database the source step's results live in (link steps, default: pubmed)"`
	LinkName string `json:"link_name,omitempty" jsonschema:"Restrict the link type (link steps)"`
	FromStep int    `json:"from_step,omitempty" validate:"omitempty,min=0" jsonschema:"Step number to link from; 0 means the most recent step"`
}

type pipelineInput struct {
	Steps      []pipelineStepInput `json:"steps" validate:"required,min=1,max=20,dive" jsonschema:"Pipeline steps, executed in order"`
	FetchFinal bool                `json:"fetch_final,omitempty" jsonschema:"Fetch the final step's records after the pipeline completes"`
	RetMax     int                 `json:"ret_max,omitempty" validate:"omitempty,min=1,max=10000" jsonschema:"How many records to fetch from the final step (default: 50)"`
	RetType    string              `json:"ret_type,omitempty" validate:"omitempty,oneof=abstract medline full xml uilist" jsonschema:"Record type for the final fetch (default: abstract)"`
}

type pipelineStepOutput struct {
	Step        int    `json:"step" jsonschema:"1-based step number"`
	Operation   string `json:"operation" jsonschema:"search or link"`
	Database    string `json:"database" jsonschema:"Database the step's results live in"`
	QueryKey    string `json:"query_key" jsonschema:"History server key addressing the step's results"`
	ResultCount int    `json:"result_count" jsonschema:"Records the step produced"`
}

type pipelineOutput struct {
	WebEnv           string               `json:"web_env" jsonschema:"History session environment"`
	Steps            []pipelineStepOutput `json:"steps" jsonschema:"Executed steps in order"`
	FinalResultCount int                  `json:"final_result_count" jsonschema:"Record count of the last step"`
	Results          string               `json:"results,omitempty" jsonschema:"Fetched records when fetch_final was set"`
}

type batchProcessInput struct {
	IDList    []string `json:"ids" validate:"required,min=1,dive,required" jsonschema:"Article IDs to process"`
	DB        string   `json:"db,omitempty" validate:"omitempty,oneof=pubmed pmc" jsonschema:"Database the IDs belong to (default: pubmed)"`
	Operation string   `json:"operation" validate:"required,oneof=summaries fetch" jsonschema:"summaries for structured docsums, fetch for raw records via the history server"`
	RetType   string   `json:"ret_type,omitempty" validate:"omitempty,oneof=abstract medline full xml uilist" jsonschema:"Record type when operation is fetch (default: abstract)"`
}

type batchProcessOutput struct {
	Processed int              `json:"processed" jsonschema:"Number of IDs processed"`
	WebEnv    string           `json:"web_env,omitempty" jsonschema:"History session holding the uploaded set (fetch operation)"`
	QueryKey  string           `json:"query_key,omitempty" jsonschema:"History key of the uploaded set (fetch operation)"`
	Content   string           `json:"content,omitempty" jsonschema:"Raw fetched records (fetch operation)"`
	Summaries []articleSummary `json:"summaries,omitempty" jsonschema:"Structured summaries (summaries operation)"`
}

func (s *Server) registerPipelineTools() {
	addTool(s, "build_search_pipeline",
		"Run a multi-step search pipeline on the Entrez History server: chain searches and cross-database links without downloading intermediate result sets, then optionally fetch the final records.",
		func(ctx context.Context, in pipelineInput) (pipelineOutput, error) {
			s.sessions.Reset()

			for i, step := range in.Steps {
				var err error
				switch step.Operation {
				case "search":
					if step.Query == "" {
						err = fmt.Errorf("%w: step %d: search steps require a query", ncbi.ErrInvalidInput, i+1)
					} else {
						_, err = s.sessions.AddSearchStep(ctx, defaultDB(step.DB), step.Query, step.CombineWith, step.Operator)
					}
				case "link":
					if step.DB == "" {
						err = fmt.Errorf("%w: step %d: link steps require a target db", ncbi.ErrInvalidInput, i+1)
					} else {
						_, err = s.sessions.AddLinkStep(ctx, defaultDB(step.FromDB), step.DB, step.LinkName, step.FromStep)
					}
				}
				if err != nil {
					return pipelineOutput{}, fmt.Errorf("pipeline step %d: %w", i+1, err)
				}
			}

			summary := s.sessions.Summary()
			out := pipelineOutput{
				WebEnv:           summary.WebEnv,
				FinalResultCount: summary.FinalResultCount,
			}
			for _, step := range summary.Steps {
				out.Steps = append(out.Steps, pipelineStepOutput{
					Step:        step.StepNumber,
					Operation:   step.Operation,
					Database:    step.Database,
					QueryKey:    step.QueryKey,
					ResultCount: step.ResultCount,
				})
			}

			if in.FetchFinal {
				retmax := in.RetMax
				if retmax <= 0 {
					retmax = s.cfg.DefaultMaxResults
				}
				results, err := s.sessions.FetchResults(ctx, 0, retmax, 0, defaultRetType(in.RetType), "xml")
				if err != nil {
					return pipelineOutput{}, fmt.Errorf("fetch final step: %w", err)
				}
				out.Results = results
			}

			return out, nil
		})

	addTool(s, "batch_process_articles",
		"Process a large ID set server-side: upload the IDs to the Entrez History server once, then pull summaries or raw records from it.",
		func(ctx context.Context, in batchProcessInput) (batchProcessOutput, error) {
			if len(in.IDList) > s.cfg.MaxBatchSize {
				return batchProcessOutput{}, &ncbi.BatchTooLargeError{Requested: len(in.IDList), Max: s.cfg.MaxBatchSize}
			}

			db := defaultDB(in.DB)
			out := batchProcessOutput{Processed: len(in.IDList)}

			switch in.Operation {
			case "summaries":
				result, err := s.eutils.Summary(ctx, db, in.IDList)
				if err != nil {
					return batchProcessOutput{}, err
				}
				for _, doc := range result.Summaries {
					out.Summaries = append(out.Summaries, toArticleSummary(doc))
				}

			case "fetch":
				handle, err := s.eutils.Post(ctx, db, in.IDList, "")
				if err != nil {
					return batchProcessOutput{}, err
				}
				out.WebEnv = handle.WebEnv
				out.QueryKey = handle.QueryKey

				content, err := s.eutils.Fetch(ctx, eutils.FetchRequest{
					DB:       db,
					QueryKey: handle.QueryKey,
					WebEnv:   handle.WebEnv,
					RetType:  defaultRetType(in.RetType),
					RetMode:  "xml",
					RetMax:   len(in.IDList),
				})
				if err != nil {
					return batchProcessOutput{}, err
				}
				out.Content = content
			}

			return out, nil
		})
}
