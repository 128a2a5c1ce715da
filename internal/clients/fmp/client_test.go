package fmp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSheetKind(t *testing.T) {
	for _, valid := range []string{"key-metrics", "ratios", "income-statement"} {
		kind, err := ParseSheetKind(valid)
		require.NoError(t, err)
		assert.Equal(t, SheetKind(valid), kind)
	}

	_, err := ParseSheetKind("balance-sheet")
	assert.Error(t, err)
}

func newTestFMPClient(t *testing.T, handler http.HandlerFunc) (*Client, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 0, zerolog.Nop()), &calls
}

func TestRequestCachesFreshSheet(t *testing.T) {
	client, calls := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/key-metrics/AAPL", r.URL.Path)
		assert.Equal(t, "quarter", r.URL.Query().Get("period"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Write([]byte(`[{"peRatio": 28.5}]`))
	})

	first, err := client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	assert.False(t, first.Limited)

	second, err := client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	assert.Equal(t, first.FetchedAt, second.FetchedAt)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestRequestRefetchesAfterTTL(t *testing.T) {
	client, calls := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	_, err := client.Request("AAPL", SheetRatios)
	require.NoError(t, err)

	now = now.Add(DefaultTTL)
	_, err = client.Request("AAPL", SheetRatios)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestRequestTruncatesQuarters(t *testing.T) {
	client, _ := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"epsdiluted": 1.5}, {"epsdiluted": 1.4}, {"epsdiluted": 1.3},
			{"epsdiluted": 1.2}, {"epsdiluted": 1.1}, {"epsdiluted": 1.0}
		]`))
	})

	rec, err := client.Request("AAPL", SheetIncomeStatement)
	require.NoError(t, err)

	var quarters []json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Payload, &quarters))
	assert.Len(t, quarters, 4)
}

func TestRequestCachesRateLimitedPayload(t *testing.T) {
	client, calls := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Limit Reach"}`))
	})

	rec, err := client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	assert.True(t, rec.Limited)

	// The limited answer is held until expiry too, so a hot symbol does not
	// keep hitting the exhausted endpoint.
	rec, err = client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	assert.True(t, rec.Limited)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestRequestKeysBySymbolAndSheet(t *testing.T) {
	client, calls := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"sheet": %q}]`, r.URL.Path)
	})

	metrics, err := client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	ratios, err := client.Request("AAPL", SheetRatios)
	require.NoError(t, err)

	assert.NotEqual(t, string(metrics.Payload), string(ratios.Payload))
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))

	// Neither fetch evicted the other.
	_, err = client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)
	_, err = client.Request("AAPL", SheetRatios)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(calls))
}

func TestRequestNon2xxReturnsAPIError(t *testing.T) {
	client, _ := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Request("AAPL", SheetKeyMetrics)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestSweepExpired(t *testing.T) {
	client, _ := newTestFMPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	_, err := client.Request("AAPL", SheetKeyMetrics)
	require.NoError(t, err)

	now = now.Add(12 * time.Hour)
	_, err = client.Request("TSLA", SheetKeyMetrics)
	require.NoError(t, err)

	now = now.Add(13 * time.Hour)
	assert.Equal(t, 1, client.SweepExpired())
	assert.Equal(t, 0, client.SweepExpired())
}
