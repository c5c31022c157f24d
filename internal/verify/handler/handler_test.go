package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristry/internal/verify"
	dErrors "veristry/pkg/domain-errors"
)

type stubService struct {
	result *verify.Result
	err    error
	got    verify.Request
}

func (s *stubService) Verify(ctx context.Context, req verify.Request) (*verify.Result, error) {
	s.got = req
	return s.result, s.err
}

func newTestRouter(svc verify.Verifier) http.Handler {
	r := chi.NewRouter()
	New(svc, nil).Routes(r)
	return r
}

func TestHandler_Verify(t *testing.T) {
	svc := &stubService{result: &verify.Result{
		Score:    0.92,
		Level:    verify.LevelHigh,
		Verified: true,
	}}
	router := newTestRouter(svc)

	body := `{
		"business_name": "Acme Ltd",
		"business_number": "123456789",
		"location": {"jurisdiction": "on", "city": "Toronto"}
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme Ltd", svc.got.BusinessName)
	assert.Equal(t, "on", svc.got.Location.Jurisdiction)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.92, resp["score"])
	assert.Equal(t, "high", resp["level"])
	assert.Equal(t, true, resp["verified"])
}

func TestHandler_MalformedBody(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader("{not json")))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp["error"])
}

func TestHandler_ValidationErrorIncludesDescription(t *testing.T) {
	svc := &stubService{err: dErrors.New(dErrors.CodeBadRequest, "business_name is required")}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "business_name is required", resp["error_description"])
}

func TestHandler_InternalErrorHidesDetail(t *testing.T) {
	svc := &stubService{err: dErrors.New(dErrors.CodeInternal, "pool exhausted on node 7")}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "node 7")
}
