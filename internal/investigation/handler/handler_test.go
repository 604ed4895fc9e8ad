package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/internal/investigation/service"
	"limsd/internal/investigation/store"
	"limsd/internal/platform/config"
	"limsd/internal/platform/sequence"
	id "limsd/pkg/domain"
	"limsd/pkg/requestcontext"
)

type stubValidator struct {
	actors map[string]requestcontext.ActorInfo
}

func (v *stubValidator) ValidateToken(token string) (requestcontext.ActorInfo, error) {
	actor, ok := v.actors[token]
	if !ok {
		return requestcontext.ActorInfo{}, fmt.Errorf("unknown token")
	}
	return actor, nil
}

func newRouter(t *testing.T) *chi.Mux {
	t.Helper()
	policy := config.InvestigationPolicy{OOSMajorFactor: 2.0, DueDays: 14}
	svc, err := service.New(store.NewMemoryStore(), sequence.NewMemory(), policy)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := &stubValidator{actors: map[string]requestcontext.ActorInfo{
		"investigator-token": {ID: id.NewUserID(), Role: requestcontext.RoleInvestigator},
		"analyst-token":      {ID: id.NewUserID(), Role: requestcontext.RoleAnalyst},
	}}

	router := chi.NewRouter()
	New(svc, logger, validator).Register(router)
	return router
}

func do(t *testing.T, router *chi.Mux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func openOne(t *testing.T, router *chi.Mux) investigationResponse {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/investigations", "investigator-token", openRequest{
		Type: "NCR", Severity: "MINOR", Title: "Contaminated reagent lot",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp investigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandlerAuth(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodGet, "/investigations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/investigations", "analyst-token", openRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code, "analysts cannot open investigations")
}

func TestHandlerOpenAndFetch(t *testing.T) {
	router := newRouter(t)
	inv := openOne(t, router)

	assert.Equal(t, "OPEN", inv.Status)
	assert.NotEmpty(t, inv.Number)

	rec := do(t, router, http.MethodGet, "/investigations/"+inv.ID, "analyst-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/investigations/"+id.NewInvestigationID().String(), "analyst-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/investigations", "investigator-token", openRequest{
		Type: "NCR", Severity: "MINOR", Title: "bad ref", SampleID: "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWorkflow(t *testing.T) {
	router := newRouter(t)
	inv := openOne(t, router)

	rec := do(t, router, http.MethodPost, "/investigations/"+inv.ID+"/advance", "investigator-token",
		advanceRequest{Status: "CLOSED"})
	assert.Equal(t, http.StatusConflict, rec.Code, "skipping steps maps to 409")

	for _, status := range []string{"INVESTIGATING", "CORRECTIVE_ACTION"} {
		rec = do(t, router, http.MethodPost, "/investigations/"+inv.ID+"/advance", "investigator-token",
			advanceRequest{Status: status})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rootCause := "supplier changed solvent grade"
	action := "quarantine lot"
	rec = do(t, router, http.MethodPatch, "/investigations/"+inv.ID, "investigator-token",
		updateRequest{RootCause: &rootCause, CorrectiveAction: &action})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/investigations/"+inv.ID+"/advance", "investigator-token",
		advanceRequest{Status: "CLOSED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed investigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, "CLOSED", closed.Status)
	assert.NotNil(t, closed.ClosedAt)
}

func TestHandlerListFilter(t *testing.T) {
	router := newRouter(t)
	openOne(t, router)
	inv := openOne(t, router)

	rec := do(t, router, http.MethodPost, "/investigations/"+inv.ID+"/advance", "investigator-token",
		advanceRequest{Status: "INVESTIGATING"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/investigations?status=OPEN", "analyst-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []investigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)

	rec = do(t, router, http.MethodGet, "/investigations?limit=bogus", "analyst-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
