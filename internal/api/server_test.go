package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jobkontakt/crawler/internal/core"
)

type fakeClaimStore struct {
	requeued []int64
	err      error
}

func (f *fakeClaimStore) ClaimNext(context.Context, int) (core.Claim, error) {
	return core.Claim{}, core.ErrNoWork
}

func (f *fakeClaimStore) Requeue(_ context.Context, employerID int64) error {
	if f.err != nil {
		return f.err
	}
	f.requeued = append(f.requeued, employerID)
	return nil
}

type fakeRetryQueue struct {
	enqueued [][3]string
	err      error
}

func (f *fakeRetryQueue) Enqueue(_ context.Context, domain, url, category string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, [3]string{domain, url, category})
	return nil
}

func (f *fakeRetryQueue) ClaimBatch(context.Context, int) ([]core.RetryItem, error) {
	return nil, nil
}

func (f *fakeRetryQueue) Resolve(context.Context, core.RetryItem, bool, string) error {
	return nil
}

type fakeSearchQueue struct {
	enqueued []core.SearchItem
	usage    core.SearchUsage
	usageErr error
}

func (f *fakeSearchQueue) Enqueue(_ context.Context, item core.SearchItem) error {
	f.enqueued = append(f.enqueued, item)
	return nil
}

func (f *fakeSearchQueue) ClaimBatch(context.Context, int) ([]core.SearchItem, error) {
	return nil, nil
}

func (f *fakeSearchQueue) Usage(context.Context) (core.SearchUsage, error) {
	return f.usage, f.usageErr
}

func (f *fakeSearchQueue) MarkProcessed(context.Context, int64, bool, string) error {
	return nil
}

func (f *fakeSearchQueue) RecordQuery(context.Context, string) error {
	return nil
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, claims *fakeClaimStore, retries *fakeRetryQueue, searches *fakeSearchQueue, db Pinger) *Server {
	t.Helper()
	srv, err := NewServer(claims, retries, searches, db, nil)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsDatabase(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{}, &fakePinger{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{},
		&fakePinger{err: errors.New("dial refused")})
	rec = doJSON(t, down.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchUsage(t *testing.T) {
	t.Parallel()

	searches := &fakeSearchQueue{usage: core.SearchUsage{
		Queries:     400,
		Cost:        2,
		Remaining:   98,
		CanContinue: true,
	}}
	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, searches, nil)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/search/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchUsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 400, resp.Queries)
	require.InDelta(t, 2.0, resp.Cost, 1e-9)
	require.True(t, resp.CanContinue)
	require.False(t, resp.Warning)
}

func TestSearchUsageError(t *testing.T) {
	t.Parallel()

	searches := &fakeSearchQueue{usageErr: errors.New("query failed")}
	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, searches, nil)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/search/usage", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEnqueueSearch(t *testing.T) {
	t.Parallel()

	searches := &fakeSearchQueue{}
	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, searches, nil)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/search/enqueue", map[string]string{
		"employer_name": "Acme Bau GmbH",
		"reference":     "job-9",
		"postal_code":   "10115",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, searches.enqueued, 1)
	require.Equal(t, "Acme Bau GmbH", searches.enqueued[0].EmployerName)
	require.Equal(t, "10115", searches.enqueued[0].PostalCode)
}

func TestEnqueueSearchRequiresName(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/search/enqueue", map[string]string{
		"postal_code": "10115",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueRetry(t *testing.T) {
	t.Parallel()

	retries := &fakeRetryQueue{}
	srv := newTestServer(t, &fakeClaimStore{}, retries, &fakeSearchQueue{}, nil)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/retry/enqueue", map[string]string{
		"domain": "acme.example",
		"url":    "https://acme.example/jobs",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, retries.enqueued, 1)
	// Category defaults when the caller omits it.
	require.Equal(t, [3]string{"acme.example", "https://acme.example/jobs", "manual"}, retries.enqueued[0])
}

func TestEnqueueRetryRequiresDomain(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeClaimStore{}, &fakeRetryQueue{}, &fakeSearchQueue{}, nil)
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/retry/enqueue", map[string]string{
		"url": "https://acme.example",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequeueEmployer(t *testing.T) {
	t.Parallel()

	claims := &fakeClaimStore{}
	srv := newTestServer(t, claims, &fakeRetryQueue{}, &fakeSearchQueue{}, nil)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/employers/42/requeue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{42}, claims.requeued)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/employers/abc/requeue", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	missing := newTestServer(t, &fakeClaimStore{err: errors.New("no such employer")},
		&fakeRetryQueue{}, &fakeSearchQueue{}, nil)
	rec = doJSON(t, missing.Handler(), http.MethodPost, "/v1/employers/42/requeue", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(nil, &fakeRetryQueue{}, &fakeSearchQueue{}, nil, nil)
	require.Error(t, err)
}
