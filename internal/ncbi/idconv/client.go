// Package idconv is a client for the PMC ID Converter API, translating
// between PMIDs, PMCIDs, DOIs, and manuscript IDs.
package idconv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

const (
	// DefaultBaseURL is the base URL for the ID Converter API.
	DefaultBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/utils/idconv"

	// MaxIDsPerRequest is the batch ceiling documented by the service.
	MaxIDsPerRequest = 200
)

// IDType labels the identifier schemes the converter understands.
type IDType string

const (
	TypePMID    IDType = "pmid"
	TypePMCID   IDType = "pmcid"
	TypeDOI     IDType = "doi"
	TypeMID     IDType = "mid"
	TypeUnknown IDType = "unknown"
)

// Version is one article version entry from a conversion record.
type Version struct {
	PMCID   string `json:"pmcid"`
	MID     string `json:"mid,omitempty"`
	Current string `json:"current,omitempty"`
}

// Conversion is one successfully resolved identifier with all of its known
// aliases.
type Conversion struct {
	RequestedID string    `json:"requested_id"`
	PMID        string    `json:"pmid,omitempty"`
	PMCID       string    `json:"pmcid,omitempty"`
	DOI         string    `json:"doi,omitempty"`
	Live        bool      `json:"live"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Versions    []Version `json:"versions,omitempty"`
}

// Failure is one identifier the service could not resolve.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result holds a full batch conversion outcome.
type Result struct {
	Status         string       `json:"status"`
	Conversions    []Conversion `json:"conversions"`
	Failed         []Failure    `json:"failed"`
	TotalRequested int          `json:"total_requested"`
	Successful     int          `json:"successful"`
	FailedCount    int          `json:"failed_count"`
}

// Options tune a conversion request.
type Options struct {
	// IDType hints the scheme of the supplied IDs; empty lets the service
	// auto-detect.
	IDType IDType

	// Versions includes version history in each record.
	Versions bool

	// ShowAIID includes article instance IDs.
	ShowAIID bool
}

// Client calls the ID Converter API through the shared request core.
type Client struct {
	core   *ncbi.Client
	logger zerolog.Logger
}

// New creates an ID Converter client.
func New(cfg ncbi.ClientConfig, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		core:   ncbi.NewClient("idconv", cfg, logger, metrics),
		logger: logger.With().Str("component", "idconv").Logger(),
	}
}

// NewWithCore creates a client over an existing request core.
func NewWithCore(core *ncbi.Client, logger zerolog.Logger) *Client {
	return &Client{
		core:   core,
		logger: logger.With().Str("component", "idconv").Logger(),
	}
}

// Core exposes the underlying request core.
func (c *Client) Core() *ncbi.Client { return c.core }

// Convert translates a batch of identifiers. At most MaxIDsPerRequest IDs
// are accepted per call.
func (c *Client) Convert(ctx context.Context, ids []string, opts Options) (*Result, error) {
	if len(ids) == 0 {
		return &Result{Status: "ok"}, nil
	}
	if len(ids) > MaxIDsPerRequest {
		return nil, &ncbi.BatchTooLargeError{Requested: len(ids), Max: MaxIDsPerRequest}
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("format", "json")
	if opts.IDType != "" && opts.IDType != TypeUnknown {
		params.Set("idtype", string(opts.IDType))
	}
	if opts.Versions {
		params.Set("versions", "yes")
	}
	if opts.ShowAIID {
		params.Set("showaiid", "yes")
	}

	resp, err := c.core.Get(ctx, "v1.0/", params)
	if err != nil {
		return nil, fmt.Errorf("id conversion: %w", err)
	}

	return parseResult(resp.Body)
}

// Resolve translates a single identifier to all of its known aliases,
// failing with NotFound when the service has no record of it.
func (c *Client) Resolve(ctx context.Context, id string, idType IDType) (*Conversion, error) {
	result, err := c.Convert(ctx, []string{id}, Options{IDType: idType})
	if err != nil {
		return nil, err
	}

	if len(result.Conversions) > 0 {
		return &result.Conversions[0], nil
	}
	if len(result.Failed) > 0 {
		c.logger.Debug().Str("id", id).Str("error", result.Failed[0].Error).Msg("id resolution failed")
	}
	return nil, &ncbi.NotFoundError{Entity: "identifier", ID: id}
}

// DetectIDType guesses the scheme of an identifier from its shape.
func DetectIDType(id string) IDType {
	id = strings.TrimSpace(id)

	upper := strings.ToUpper(id)
	if strings.HasPrefix(upper, "PMC") && isDigits(id[3:]) {
		return TypePMCID
	}
	if strings.HasPrefix(id, "10.") && strings.Contains(id, "/") {
		return TypeDOI
	}
	if strings.HasPrefix(upper, "NIHMS") || strings.HasPrefix(upper, "MID") {
		return TypeMID
	}
	if isDigits(id) {
		return TypePMID
	}
	return TypeUnknown
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseResult(body []byte) (*Result, error) {
	var parsed struct {
		Status  string `json:"status"`
		Records []struct {
			RequestedID string    `json:"requested-id"`
			PMID        string    `json:"pmid"`
			PMCID       string    `json:"pmcid"`
			DOI         string    `json:"doi"`
			Live        string    `json:"live"`
			ReleaseDate string    `json:"release-date"`
			Versions    []Version `json:"versions"`
			ErrMsg      string    `json:"errmsg"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse id conversion response: %w", err)
	}

	result := &Result{
		Status:         parsed.Status,
		TotalRequested: len(parsed.Records),
	}
	if result.Status == "" {
		result.Status = "ok"
	}

	for _, rec := range parsed.Records {
		if rec.ErrMsg != "" {
			result.Failed = append(result.Failed, Failure{ID: rec.RequestedID, Error: rec.ErrMsg})
			continue
		}
		result.Conversions = append(result.Conversions, Conversion{
			RequestedID: rec.RequestedID,
			PMID:        rec.PMID,
			PMCID:       rec.PMCID,
			DOI:         rec.DOI,
			Live:        rec.Live == "" || rec.Live == "true",
			ReleaseDate: rec.ReleaseDate,
			Versions:    rec.Versions,
		})
	}

	result.Successful = len(result.Conversions)
	result.FailedCount = len(result.Failed)
	return result, nil
}
