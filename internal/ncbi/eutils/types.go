package eutils

// SearchRequest holds ESearch parameters.
type SearchRequest struct {
	// DB is the Entrez database to search (pubmed, pmc, mesh, ...).
	DB string

	// Query is the search term in E-utilities syntax.
	Query string

	// RetMax is the maximum number of IDs to return. Capped at
	// MaxSearchResults by the client.
	RetMax int

	// RetStart is the starting index for pagination.
	RetStart int

	// Sort is the sort order (relevance, pub_date, ...).
	Sort string

	// UseHistory stores the result set on the Entrez History server and
	// returns QueryKey/WebEnv for later steps.
	UseHistory bool

	// DateType selects which date field MinDate/MaxDate filter on
	// (pdat for publication date, edat for Entrez date).
	DateType string

	// MinDate and MaxDate bound the date range (YYYY/MM/DD or YYYY).
	MinDate string
	MaxDate string
}

// SearchResult holds a parsed ESearch response.
type SearchResult struct {
	// Count is the total number of records matching the query.
	Count int

	// IDs is the page of matching UIDs.
	IDs []string

	// QueryKey and WebEnv identify the result set on the History server.
	// Empty unless the search was made with UseHistory.
	QueryKey string
	WebEnv   string

	// QueryTranslation is how Entrez interpreted the query.
	QueryTranslation string

	RetMax   int
	RetStart int
}

// DocumentSummary is one ESummary v2.0 record. Field coverage follows the
// pubmed and pmc docsum shapes; other databases share most of these.
type DocumentSummary struct {
	UID             string          `json:"uid"`
	Title           string          `json:"title"`
	PubDate         string          `json:"pubdate"`
	EPubDate        string          `json:"epubdate"`
	Source          string          `json:"source"`
	Authors         []SummaryAuthor `json:"authors"`
	LastAuthor      string          `json:"lastauthor"`
	Volume          string          `json:"volume"`
	Issue           string          `json:"issue"`
	Pages           string          `json:"pages"`
	ELocationID     string          `json:"elocationid"`
	FullJournalName string          `json:"fulljournalname"`
	ISSN            string          `json:"issn"`
	ESSN            string          `json:"essn"`
	PubType         []string        `json:"pubtype"`
	ArticleIDs      []ArticleID     `json:"articleids"`
	SortPubDate     string          `json:"sortpubdate"`
}

// SummaryAuthor is an author entry inside a DocumentSummary.
type SummaryAuthor struct {
	Name     string `json:"name"`
	AuthType string `json:"authtype"`
}

// ArticleID is an alternate identifier (doi, pmc, pii, ...) for a record.
type ArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}

// SummaryResult holds parsed ESummary records in the order Entrez returned
// them.
type SummaryResult struct {
	UIDs      []string
	Summaries []DocumentSummary
}

// FetchRequest holds EFetch parameters. Either IDs or QueryKey+WebEnv must be
// set.
type FetchRequest struct {
	DB       string
	IDs      []string
	RetType  string
	RetMode  string
	QueryKey string
	WebEnv   string
	RetMax   int
	RetStart int
}

// PostResult holds the History handle returned by EPost.
type PostResult struct {
	QueryKey string
	WebEnv   string
}

// LinkRequest holds ELink parameters. IDs and QueryKey+WebEnv are
// alternatives, matching EFetch.
type LinkRequest struct {
	// FromDB is the database the source records live in.
	FromDB string

	// ToDB is the database to find linked records in.
	ToDB string

	IDs []string

	// Cmd is the ELink command (neighbor, neighbor_history, prlinks, ...).
	Cmd string

	// LinkName restricts the link type (e.g. pubmed_pubmed_citedin).
	LinkName string

	QueryKey string
	WebEnv   string
}

// LinkSet is one group of linked UIDs from an ELink response.
type LinkSet struct {
	DBTo     string
	LinkName string
	IDs      []string
}

// LinkResult holds a parsed ELink response.
type LinkResult struct {
	LinkSets []LinkSet

	// QueryKey and WebEnv are set for cmd=neighbor_history, where the
	// linked set is stored on the History server instead of returned
	// inline.
	QueryKey string
	WebEnv   string
}

// DatabaseCount is one database's hit count from an EGQuery response.
type DatabaseCount struct {
	DBName   string
	MenuName string
	Count    int
	Status   string
}

// GlobalQueryResult holds a parsed EGQuery response.
type GlobalQueryResult struct {
	Databases []DatabaseCount
}

// SpellResult holds a parsed ESpell response.
type SpellResult struct {
	Query          string
	CorrectedQuery string
	ReplacedTerms  []string
}

// Citation is one citation string for ECitMatch, in the order the service
// expects: journal|year|volume|first page|author|key.
type Citation struct {
	Journal   string
	Year      string
	Volume    string
	FirstPage string
	Author    string
	Key       string
}

// CitationMatch is one resolved citation from an ECitMatch response. PMID is
// empty when the citation could not be matched.
type CitationMatch struct {
	Journal   string
	Year      string
	Volume    string
	FirstPage string
	Author    string
	PMID      string
}

// CitMatchResult holds a parsed ECitMatch response.
type CitMatchResult struct {
	Matches []CitationMatch
}
