package eutils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
)

// newTestClient serves the handler and returns a client pointed at it plus a
// pointer that captures the last request's query or form parameters.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *url.Values) {
	t.Helper()

	var captured url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		captured = r.Form
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := New(ncbi.ClientConfig{
		BaseURL: srv.URL,
		Email:   "dev@example.org",
	}, zerolog.Nop(), nil)
	return client, &captured
}

func TestClient_Search(t *testing.T) {
	t.Run("parses a search response", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/esearch.fcgi", r.URL.Path)
			w.Write([]byte(`{"esearchresult":{"count":"2","retmax":"2","retstart":"0",` +
				`"idlist":["11111","22222"],"querytranslation":"cancer[All Fields]"}}`))
		})

		result, err := client.Search(context.Background(), SearchRequest{
			DB:    "pubmed",
			Query: "cancer",
		})
		require.NoError(t, err)

		assert.Equal(t, 2, result.Count)
		assert.Equal(t, []string{"11111", "22222"}, result.IDs)
		assert.Equal(t, "cancer[All Fields]", result.QueryTranslation)
		assert.Equal(t, "pubmed", params.Get("db"))
		assert.Equal(t, "cancer", params.Get("term"))
		assert.Equal(t, "json", params.Get("retmode"))
		assert.Equal(t, "50", params.Get("retmax"))
	})

	t.Run("requests history when asked", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"esearchresult":{"count":"5","idlist":[],` +
				`"querykey":"1","webenv":"MCID_abc"}}`))
		})

		result, err := client.Search(context.Background(), SearchRequest{
			DB:         "pubmed",
			Query:      "cancer",
			UseHistory: true,
		})
		require.NoError(t, err)

		assert.Equal(t, "y", params.Get("usehistory"))
		assert.Equal(t, "1", result.QueryKey)
		assert.Equal(t, "MCID_abc", result.WebEnv)
	})

	t.Run("caps retmax and passes date filters", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
		})

		_, err := client.Search(context.Background(), SearchRequest{
			DB:       "pubmed",
			Query:    "cancer",
			RetMax:   99999,
			DateType: "pdat",
			MinDate:  "2020/01/01",
			MaxDate:  "2023/12/31",
			Sort:     "pub_date",
		})
		require.NoError(t, err)

		assert.Equal(t, "10000", params.Get("retmax"))
		assert.Equal(t, "pdat", params.Get("datetype"))
		assert.Equal(t, "2020/01/01", params.Get("mindate"))
		assert.Equal(t, "2023/12/31", params.Get("maxdate"))
		assert.Equal(t, "pub_date", params.Get("sort"))
	})
}

func TestClient_Summary(t *testing.T) {
	t.Run("parses records in uid order", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/esummary.fcgi", r.URL.Path)
			w.Write([]byte(`{"result":{"uids":["22222","11111"],` +
				`"11111":{"uid":"11111","title":"First","pubdate":"2021 Jan",` +
				`"authors":[{"name":"Smith J","authtype":"Author"}],` +
				`"articleids":[{"idtype":"doi","value":"10.1/x"}]},` +
				`"22222":{"title":"Second"}}}`))
		})

		result, err := client.Summary(context.Background(), "pubmed", []string{"22222", "11111"})
		require.NoError(t, err)

		require.Len(t, result.Summaries, 2)
		assert.Equal(t, "Second", result.Summaries[0].Title)
		assert.Equal(t, "22222", result.Summaries[0].UID) // backfilled from the key
		assert.Equal(t, "First", result.Summaries[1].Title)
		assert.Equal(t, "Smith J", result.Summaries[1].Authors[0].Name)
		assert.Equal(t, "10.1/x", result.Summaries[1].ArticleIDs[0].Value)

		assert.Equal(t, "22222,11111", params.Get("id"))
		assert.Equal(t, "2.0", params.Get("version"))
	})

	t.Run("skips the request for no ids", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		result, err := client.Summary(context.Background(), "pubmed", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Summaries)
	})
}

func TestClient_Fetch(t *testing.T) {
	t.Run("fetches by ids", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/efetch.fcgi", r.URL.Path)
			w.Write([]byte("<PubmedArticleSet/>"))
		})

		text, err := client.Fetch(context.Background(), FetchRequest{
			DB:      "pubmed",
			IDs:     []string{"11111", "22222"},
			RetType: "abstract",
			RetMode: "xml",
		})
		require.NoError(t, err)

		assert.Equal(t, "<PubmedArticleSet/>", text)
		assert.Equal(t, "11111,22222", params.Get("id"))
		assert.Equal(t, "abstract", params.Get("rettype"))
		assert.Equal(t, "xml", params.Get("retmode"))
	})

	t.Run("fetches from the history server", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("records"))
		})

		_, err := client.Fetch(context.Background(), FetchRequest{
			DB:       "pubmed",
			QueryKey: "2",
			WebEnv:   "MCID_abc",
			RetMax:   100,
			RetStart: 200,
		})
		require.NoError(t, err)

		assert.Equal(t, "2", params.Get("query_key"))
		assert.Equal(t, "MCID_abc", params.Get("WebEnv"))
		assert.Equal(t, "100", params.Get("retmax"))
		assert.Equal(t, "200", params.Get("retstart"))
	})

	t.Run("rejects a request with neither ids nor history", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		_, err := client.Fetch(context.Background(), FetchRequest{DB: "pubmed"})
		assert.ErrorIs(t, err, ncbi.ErrInvalidInput)
	})
}

func TestClient_Post(t *testing.T) {
	t.Run("uploads ids and parses the handle", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/epost.fcgi", r.URL.Path)
			w.Write([]byte(`<ePostResult><QueryKey>1</QueryKey><WebEnv>MCID_post</WebEnv></ePostResult>`))
		})

		result, err := client.Post(context.Background(), "pubmed", []string{"11111", "22222"}, "")
		require.NoError(t, err)

		assert.Equal(t, "1", result.QueryKey)
		assert.Equal(t, "MCID_post", result.WebEnv)
		assert.Equal(t, "11111,22222", params.Get("id"))
	})

	t.Run("appends to an existing session", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<ePostResult><QueryKey>2</QueryKey><WebEnv>MCID_post</WebEnv></ePostResult>`))
		})

		_, err := client.Post(context.Background(), "pubmed", []string{"33333"}, "MCID_post")
		require.NoError(t, err)
		assert.Equal(t, "MCID_post", params.Get("WebEnv"))
	})

	t.Run("rejects an empty id list", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		_, err := client.Post(context.Background(), "pubmed", nil, "")
		assert.ErrorIs(t, err, ncbi.ErrInvalidInput)
	})
}

func TestClient_Link(t *testing.T) {
	t.Run("parses inline neighbor links", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/elink.fcgi", r.URL.Path)
			w.Write([]byte(`{"linksets":[{"linksetdbs":[` +
				`{"dbto":"pubmed","linkname":"pubmed_pubmed","links":["1","2","3"]}]}]}`))
		})

		result, err := client.Link(context.Background(), LinkRequest{
			FromDB: "pubmed",
			ToDB:   "pubmed",
			IDs:    []string{"11111"},
		})
		require.NoError(t, err)

		require.Len(t, result.LinkSets, 1)
		assert.Equal(t, []string{"1", "2", "3"}, result.LinkSets[0].IDs)
		assert.Equal(t, "pubmed_pubmed", result.LinkSets[0].LinkName)
		assert.Equal(t, "neighbor", params.Get("cmd"))
	})

	t.Run("parses history-mode links", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"linksets":[{"webenv":"MCID_link",` +
				`"linksetdbhistories":[{"dbto":"pmc","linkname":"pubmed_pmc","querykey":"3"}]}]}`))
		})

		result, err := client.Link(context.Background(), LinkRequest{
			FromDB:   "pubmed",
			ToDB:     "pmc",
			Cmd:      "neighbor_history",
			QueryKey: "1",
			WebEnv:   "MCID_link",
		})
		require.NoError(t, err)

		assert.Equal(t, "3", result.QueryKey)
		assert.Equal(t, "MCID_link", result.WebEnv)
		assert.Equal(t, "neighbor_history", params.Get("cmd"))
		assert.Equal(t, "1", params.Get("query_key"))
	})

	t.Run("rejects a request with neither ids nor history", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		_, err := client.Link(context.Background(), LinkRequest{FromDB: "pubmed", ToDB: "pmc"})
		assert.ErrorIs(t, err, ncbi.ErrInvalidInput)
	})
}

func TestClient_GlobalQuery(t *testing.T) {
	client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/egquery.fcgi", r.URL.Path)
		w.Write([]byte(`<Result><Term>cancer</Term><eGQueryResult>` +
			`<ResultItem><DbName>pubmed</DbName><MenuName>PubMed</MenuName><Count>4000000</Count><Status>Ok</Status></ResultItem>` +
			`<ResultItem><DbName>pmc</DbName><MenuName>PMC</MenuName><Count>0</Count><Status>Term or Database is not found</Status></ResultItem>` +
			`</eGQueryResult></Result>`))
	})

	result, err := client.GlobalQuery(context.Background(), "cancer")
	require.NoError(t, err)

	require.Len(t, result.Databases, 2)
	assert.Equal(t, "pubmed", result.Databases[0].DBName)
	assert.Equal(t, 4000000, result.Databases[0].Count)
	assert.Equal(t, "Ok", result.Databases[0].Status)
	assert.Equal(t, "cancer", params.Get("term"))
}

func TestClient_Spell(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/espell.fcgi", r.URL.Path)
		w.Write([]byte(`<eSpellResult><Query>aasthma</Query>` +
			`<CorrectedQuery>asthma</CorrectedQuery>` +
			`<SpelledQuery><Replaced>asthma</Replaced></SpelledQuery></eSpellResult>`))
	})

	result, err := client.Spell(context.Background(), "pubmed", "aasthma")
	require.NoError(t, err)

	assert.Equal(t, "aasthma", result.Query)
	assert.Equal(t, "asthma", result.CorrectedQuery)
	assert.Equal(t, []string{"asthma"}, result.ReplacedTerms)
}

func TestClient_CitMatch(t *testing.T) {
	t.Run("resolves citations to pmids", func(t *testing.T) {
		client, params := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ecitmatch.cgi", r.URL.Path)
			w.Write([]byte("proc natl acad sci u s a|1991|88|3248|mann bj|c1|2014248\n" +
				"science|1987|235|182|palmenberg ac|c2|NOT_FOUND\n"))
		})

		result, err := client.CitMatch(context.Background(), "pubmed", []Citation{
			{Journal: "proc natl acad sci u s a", Year: "1991", Volume: "88", FirstPage: "3248", Author: "mann bj", Key: "c1"},
			{Journal: "science", Year: "1987", Volume: "235", FirstPage: "182", Author: "palmenberg ac", Key: "c2"},
		})
		require.NoError(t, err)

		require.Len(t, result.Matches, 2)
		assert.Equal(t, "2014248", result.Matches[0].PMID)
		assert.Equal(t, "proc natl acad sci u s a", result.Matches[0].Journal)
		assert.Empty(t, result.Matches[1].PMID)

		assert.Contains(t, params.Get("bdata"), "proc natl acad sci u s a|1991|88|3248|mann bj|c1|")
	})

	t.Run("skips the request for no citations", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected request")
		})

		result, err := client.CitMatch(context.Background(), "pubmed", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Matches)
	})
}
