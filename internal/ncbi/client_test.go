package ncbi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps the retry loop fast in tests.
func fastRetry(maxRetries int) Backoff {
	return Backoff{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		Factor:     2.0,
		MaxDelay:   10 * time.Millisecond,
	}
}

func testClient(baseURL string, retry Backoff) *Client {
	return NewClient("test", ClientConfig{
		BaseURL:   baseURL,
		Email:     "dev@example.org",
		RateLimit: 1000,
		Retry:     retry,
	}, zerolog.Nop(), nil)
}

func TestNewClient(t *testing.T) {
	t.Run("applies defaults without api key", func(t *testing.T) {
		c := NewClient("eutils", ClientConfig{BaseURL: "https://example.org"}, zerolog.Nop(), nil)

		require.NotNil(t, c)
		assert.Equal(t, DefaultTimeout, c.http.Timeout)
		assert.Equal(t, RateLimitWithoutKey, c.limiter.Capacity())
		assert.Equal(t, 3, c.cfg.Retry.MaxRetries)
		assert.Equal(t, "pubmed-mcp-service", c.cfg.Tool)
	})

	t.Run("api key raises the default rate limit", func(t *testing.T) {
		c := NewClient("eutils", ClientConfig{
			BaseURL: "https://example.org",
			APIKey:  "secret",
		}, zerolog.Nop(), nil)

		assert.Equal(t, RateLimitWithKey, c.limiter.Capacity())
	})

	t.Run("explicit rate limit wins over key heuristic", func(t *testing.T) {
		c := NewClient("eutils", ClientConfig{
			BaseURL:   "https://example.org",
			APIKey:    "secret",
			RateLimit: 5,
		}, zerolog.Nop(), nil)

		assert.Equal(t, 5, c.limiter.Capacity())
	})
}

func TestClient_Get(t *testing.T) {
	t.Run("returns raw body on success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`<eSearchResult><Count>42</Count></eSearchResult>`))
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		resp, err := c.Get(context.Background(), "esearch.fcgi", url.Values{"db": {"pubmed"}})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Text(), "<Count>42</Count>")
	})

	t.Run("sends identification parameters on every call", func(t *testing.T) {
		var query url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient("eutils", ClientConfig{
			BaseURL:   server.URL,
			APIKey:    "secret-key",
			Tool:      "test-tool",
			Email:     "dev@example.org",
			RateLimit: 1000,
			Retry:     fastRetry(3),
		}, zerolog.Nop(), nil)

		_, err := c.Get(context.Background(), "esearch.fcgi", url.Values{
			"db":   {"pubmed"},
			"term": {"crispr"},
		})
		require.NoError(t, err)

		assert.Equal(t, "test-tool", query.Get("tool"))
		assert.Equal(t, "dev@example.org", query.Get("email"))
		assert.Equal(t, "secret-key", query.Get("api_key"))
		assert.Equal(t, "pubmed", query.Get("db"))
		assert.Equal(t, "crispr", query.Get("term"))
	})

	t.Run("sets user agent", func(t *testing.T) {
		var userAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.Header.Get("User-Agent")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.NoError(t, err)

		assert.Contains(t, userAgent, "pubmed-mcp-service")
		assert.Contains(t, userAgent, "dev@example.org")
	})
}

func TestClient_PostForm(t *testing.T) {
	t.Run("sends form-encoded body", func(t *testing.T) {
		var contentType, body string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType = r.Header.Get("Content-Type")
			require.NoError(t, r.ParseForm())
			body = r.PostForm.Get("id")
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		_, err := c.PostForm(context.Background(), "epost.fcgi",
			url.Values{"db": {"pubmed"}},
			url.Values{"id": {"111,222,333"}})
		require.NoError(t, err)

		assert.Equal(t, "application/x-www-form-urlencoded", contentType)
		assert.Equal(t, "111,222,333", body)
	})
}

func TestClient_RetryOn5xx(t *testing.T) {
	t.Run("makes exactly initial plus max retries attempts", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		resp, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.Equal(t, int32(4), attempts.Load())

		var svcErr *ServiceError
		assert.ErrorAs(t, err, &svcErr)
		assert.Equal(t, http.StatusServiceUnavailable, svcErr.StatusCode)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("recovers when the service comes back", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		resp, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text())
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("gateway statuses advertise a shorter retry hint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(0))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)

		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, 30*time.Second, svcErr.RetryAfter)
	})
}

func TestClient_RetryOn429(t *testing.T) {
	t.Run("retries and succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		resp, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("honors Retry-After seconds between attempts", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		start := time.Now()
		resp, err := c.Get(context.Background(), "esearch.fcgi", nil)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	})

	t.Run("terminal 429 carries the server hint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(0))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)

		var rlErr *RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, 7*time.Second, rlErr.RetryAfter)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("terminal 429 without hint falls back to default", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(0))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)

		var rlErr *RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, defaultRetryAfter, rlErr.RetryAfter)
	})
}

func TestClient_NoRetryOn4xx(t *testing.T) {
	t.Run("404 fails on the first attempt", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("no such record"))
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		resp, err := c.Get(context.Background(), "efetch.fcgi", nil)
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.Equal(t, int32(1), attempts.Load())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("400 surfaces the response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("unbalanced parentheses in term"))
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadQuery)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Contains(t, apiErr.Body, "unbalanced parentheses")
	})

	t.Run("401 maps to unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := testClient(server.URL, fastRetry(3))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestClient_NetworkFailure(t *testing.T) {
	t.Run("transport failure retries then maps to network error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		server.Close() // connection refused from here on

		c := testClient(server.URL, fastRetry(2))

		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNetwork)

		var netErr *NetworkError
		assert.ErrorAs(t, err, &netErr)
	})

	t.Run("cancellation stops the retry loop", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := testClient(server.URL, Backoff{
			MaxRetries: 5,
			BaseDelay:  time.Second,
			Factor:     2.0,
			MaxDelay:   60 * time.Second,
		})

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := c.Get(ctx, "esearch.fcgi", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.GreaterOrEqual(t, attempts.Load(), int32(1))
	})
}

func TestClient_RateLimiting(t *testing.T) {
	t.Run("every attempt pays a limiter token", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient("test", ClientConfig{
			BaseURL:    server.URL,
			RateLimit:  2,
			RateWindow: 100 * time.Millisecond,
			Retry:      fastRetry(3),
		}, zerolog.Nop(), nil)

		start := time.Now()
		_, err := c.Get(context.Background(), "esearch.fcgi", nil)
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.Equal(t, int32(4), attempts.Load())
		// Four attempts at 2 per 100ms: the last two must wait for refill.
		assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	})

	t.Run("shared limiter serializes clients", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		shared := NewLimiter(2, 100*time.Millisecond)

		a := testClient(server.URL, fastRetry(3))
		b := testClient(server.URL, fastRetry(3))
		a.SharedLimiter(shared)
		b.SharedLimiter(shared)

		ctx := context.Background()
		start := time.Now()
		for i := 0; i < 2; i++ {
			_, err := a.Get(ctx, "esearch.fcgi", nil)
			require.NoError(t, err)
			_, err = b.Get(ctx, "esearch.fcgi", nil)
			require.NoError(t, err)
		}
		elapsed := time.Since(start)

		// Four calls against a shared budget of 2 per 100ms.
		assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
	})
}

func TestRetryAfterHint(t *testing.T) {
	t.Run("parses whole seconds", func(t *testing.T) {
		h := http.Header{"Retry-After": []string{"5"}}
		assert.Equal(t, 5*time.Second, retryAfterHint(h))
	})

	t.Run("parses HTTP date", func(t *testing.T) {
		future := time.Now().Add(10 * time.Second)
		h := http.Header{"Retry-After": []string{future.UTC().Format(http.TimeFormat)}}

		hint := retryAfterHint(h)
		assert.Greater(t, hint, 8*time.Second)
		assert.Less(t, hint, 11*time.Second)
	})

	t.Run("returns zero for missing or invalid values", func(t *testing.T) {
		assert.Zero(t, retryAfterHint(http.Header{}))
		assert.Zero(t, retryAfterHint(http.Header{"Retry-After": []string{"soon"}}))
		assert.Zero(t, retryAfterHint(http.Header{"Retry-After": []string{"-3"}}))
	})

	t.Run("returns zero for past HTTP date", func(t *testing.T) {
		past := time.Now().Add(-10 * time.Second)
		h := http.Header{"Retry-After": []string{past.UTC().Format(http.TimeFormat)}}
		assert.Zero(t, retryAfterHint(h))
	})
}
