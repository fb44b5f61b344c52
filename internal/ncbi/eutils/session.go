package eutils

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/observability"
)

// entrez is the capability the session manager needs from an E-utilities
// client. *Client satisfies it; tests substitute a fake.
type entrez interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Link(ctx context.Context, req LinkRequest) (*LinkResult, error)
	Fetch(ctx context.Context, req FetchRequest) (string, error)
}

// PipelineStep records one executed step of a History pipeline.
type PipelineStep struct {
	// StepNumber is the 1-based position within the pipeline.
	StepNumber int `json:"step"`

	// Operation is what the step did: search or link.
	Operation string `json:"operation"`

	// Database is the database the step's results live in.
	Database string `json:"database"`

	// QueryKey addresses the step's result set within the session's WebEnv.
	QueryKey string `json:"query_key"`

	// ResultCount is how many records the step produced.
	ResultCount int `json:"result_count"`

	// Parameters echoes the inputs that produced the step.
	Parameters map[string]any `json:"parameters"`
}

// PipelineSummary describes a pipeline's full execution for reporting.
type PipelineSummary struct {
	WebEnv           string         `json:"web_env"`
	TotalSteps       int            `json:"total_steps"`
	Steps            []PipelineStep `json:"steps"`
	FinalResultCount int            `json:"final_result_count"`
}

// SessionManager chains E-utilities operations on the Entrez History server.
//
// The History server keeps intermediate result sets addressable by
// WebEnv+QueryKey, so a pipeline like search → link → fetch never downloads
// the intermediate UID lists. A manager holds one session at a time; Reset
// abandons it and starts the step numbering over.
//
// All methods are safe for concurrent use, but steps execute in call order,
// so concurrent callers building one pipeline must coordinate ordering
// themselves.
type SessionManager struct {
	mu      sync.Mutex
	client  entrez
	webEnv  string
	steps   []PipelineStep
	counter int

	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewSessionManager creates a manager over the given E-utilities client.
// metrics may be nil.
func NewSessionManager(client entrez, logger zerolog.Logger, metrics *observability.Metrics) *SessionManager {
	return &SessionManager{
		client:  client,
		logger:  logger.With().Str("component", "session-manager").Logger(),
		metrics: metrics,
	}
}

// Active reports whether a History session is currently open.
func (m *SessionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.webEnv != ""
}

// WebEnv returns the current session's History environment, or "" when idle.
func (m *SessionManager) WebEnv() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.webEnv
}

// StartSession opens a new History session with an initial search. Any
// existing session is abandoned: step numbering restarts at 1.
func (m *SessionManager) StartSession(ctx context.Context, db, query string) (*PipelineStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return m.startLocked(ctx, db, query)
}

func (m *SessionManager) startLocked(ctx context.Context, db, query string) (*PipelineStep, error) {
	result, err := m.client.Search(ctx, SearchRequest{
		DB:         db,
		Query:      query,
		UseHistory: true,
	})
	if err != nil {
		return nil, err
	}

	if result.WebEnv == "" || result.QueryKey == "" {
		return nil, &ncbi.SessionError{Message: "failed to start session: no history data returned"}
	}
	m.webEnv = result.WebEnv

	step := m.appendStep("search", db, result.QueryKey, result.Count, map[string]any{
		"query": query,
	})

	if m.metrics != nil {
		m.metrics.RecordSessionStarted()
	}
	m.logger.Info().
		Str("web_env", m.webEnv).
		Int("step", step.StepNumber).
		Int("result_count", step.ResultCount).
		Msg("session started")

	return step, nil
}

// AddSearchStep runs a further search within the session. With no session
// open it degrades to StartSession.
//
// combineWith, when non-empty, names an earlier step's query key; the query
// sent to Entrez becomes "#<key> <operator> (<query>)" so the History server
// intersects (or unions, or subtracts) the stored set with the new term.
// operator defaults to AND.
func (m *SessionManager) AddSearchStep(ctx context.Context, db, query, combineWith, operator string) (*PipelineStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.webEnv == "" {
		return m.startLocked(ctx, db, query)
	}

	if operator == "" {
		operator = "AND"
	}
	fullQuery := query
	if combineWith != "" {
		fullQuery = fmt.Sprintf("#%s %s (%s)", combineWith, operator, query)
	}

	result, err := m.client.Search(ctx, SearchRequest{
		DB:         db,
		Query:      fullQuery,
		UseHistory: true,
	})
	if err != nil {
		return nil, err
	}

	// Entrez may rotate the environment between calls.
	if result.WebEnv != "" {
		m.webEnv = result.WebEnv
	}

	step := m.appendStep("search", db, result.QueryKey, result.Count, map[string]any{
		"query":         query,
		"combined_with": combineWith,
		"operator":      operator,
	})

	m.logger.Info().
		Int("step", step.StepNumber).
		Int("result_count", step.ResultCount).
		Msg("search step added")

	return step, nil
}

// AddLinkStep links a previous step's result set into another database,
// storing the linked set on the History server (cmd=neighbor_history).
//
// fromStep selects which step to link from; 0 means the most recent one.
func (m *SessionManager) AddLinkStep(ctx context.Context, fromDB, toDB, linkName string, fromStep int) (*PipelineStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.webEnv == "" {
		return nil, &ncbi.SessionError{Message: "cannot add link step: no active session"}
	}

	source, err := m.stepLocked(fromStep)
	if err != nil {
		return nil, err
	}

	result, err := m.client.Link(ctx, LinkRequest{
		FromDB:   fromDB,
		ToDB:     toDB,
		Cmd:      "neighbor_history",
		LinkName: linkName,
		QueryKey: source.QueryKey,
		WebEnv:   m.webEnv,
	})
	if err != nil {
		return nil, err
	}

	totalLinked := 0
	for _, ls := range result.LinkSets {
		totalLinked += len(ls.IDs)
	}

	// neighbor_history stores the linked set under the next key in the
	// session; the response does not always echo it, so derive it from the
	// pipeline position.
	queryKey := result.QueryKey
	if queryKey == "" {
		queryKey = strconv.Itoa(len(m.steps) + 1)
	}

	step := m.appendStep("link", toDB, queryKey, totalLinked, map[string]any{
		"from_db":   fromDB,
		"link_name": linkName,
		"from_step": fromStep,
	})

	m.logger.Info().
		Int("step", step.StepNumber).
		Int("result_count", step.ResultCount).
		Msg("link step added")

	return step, nil
}

// FetchResults downloads records from a pipeline step via the History
// server. step 0 means the most recent step. The raw response text is
// returned in whatever format retType/retMode select.
func (m *SessionManager) FetchResults(ctx context.Context, step, retMax, retStart int, retType, retMode string) (string, error) {
	m.mu.Lock()

	if m.webEnv == "" {
		m.mu.Unlock()
		return "", &ncbi.SessionError{Message: "cannot fetch: no active session"}
	}

	source, err := m.stepLocked(step)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	req := FetchRequest{
		DB:       source.Database,
		QueryKey: source.QueryKey,
		WebEnv:   m.webEnv,
		RetMax:   retMax,
		RetStart: retStart,
		RetType:  retType,
		RetMode:  retMode,
	}
	// Release before the network call: a fetch must not block pipeline
	// inspection or reset.
	m.mu.Unlock()

	return m.client.Fetch(ctx, req)
}

// Summary reports the pipeline executed in the current session.
func (m *SessionManager) Summary() PipelineSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps := make([]PipelineStep, len(m.steps))
	copy(steps, m.steps)

	summary := PipelineSummary{
		WebEnv:     m.webEnv,
		TotalSteps: len(steps),
		Steps:      steps,
	}
	if len(steps) > 0 {
		summary.FinalResultCount = steps[len(steps)-1].ResultCount
	}
	return summary
}

// Reset abandons the current session. The next pipeline starts at step 1.
func (m *SessionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.logger.Info().Msg("session reset")
}

func (m *SessionManager) reset() {
	m.webEnv = ""
	m.steps = nil
	m.counter = 0
}

// stepLocked resolves a step number to its record; 0 means the latest step.
func (m *SessionManager) stepLocked(number int) (*PipelineStep, error) {
	if number == 0 {
		if len(m.steps) == 0 {
			return nil, &ncbi.SessionError{Message: "no steps in pipeline"}
		}
		return &m.steps[len(m.steps)-1], nil
	}
	for i := range m.steps {
		if m.steps[i].StepNumber == number {
			return &m.steps[i], nil
		}
	}
	return nil, &ncbi.SessionError{
		Message: fmt.Sprintf("step %d not found in pipeline", number),
		Step:    number,
	}
}

func (m *SessionManager) appendStep(operation, db, queryKey string, count int, params map[string]any) *PipelineStep {
	m.counter++
	step := PipelineStep{
		StepNumber:  m.counter,
		Operation:   operation,
		Database:    db,
		QueryKey:    queryKey,
		ResultCount: count,
		Parameters:  params,
	}
	m.steps = append(m.steps, step)
	if m.metrics != nil {
		m.metrics.RecordPipelineStep(operation)
	}
	return &step
}
