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

	"limsd/internal/catalog"
	"limsd/internal/platform/sequence"
	"limsd/internal/sample/service"
	"limsd/internal/sample/store"
	id "limsd/pkg/domain"
	"limsd/pkg/requestcontext"
)

// stubValidator maps opaque test tokens to actors.
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

type harness struct {
	router    *chi.Mux
	clientID  id.ClientID
	productID id.ProductID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat := catalog.NewMemoryStore()

	client := &catalog.Client{ID: id.NewClientID(), Name: "Acme Beverages"}
	cat.PutClient(client)
	product := &catalog.Product{ID: id.NewProductID(), Name: "Sparkling Water 500ml"}
	cat.PutProduct(product)
	method := &catalog.TestMethod{
		ID: id.NewTestMethodID(), Code: "PH-25", Name: "pH at 25C",
		ResultType: catalog.ResultQuantitative, DecimalPlaces: 2,
		MinLimit: limit(3.5), MaxLimit: limit(4.5), TATHours: 24,
	}
	cat.PutTestMethod(method)
	cat.PutProductTest(catalog.ProductTest{ProductID: product.ID, TestMethodID: method.ID, Mandatory: true, SortOrder: 1})

	svc, err := service.New(store.NewMemoryStore(), cat, sequence.NewMemory())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := &stubValidator{actors: map[string]requestcontext.ActorInfo{
		"analyst-token":  {ID: id.NewUserID(), Role: requestcontext.RoleAnalyst},
		"reviewer-token": {ID: id.NewUserID(), Role: requestcontext.RoleReviewer},
	}}

	router := chi.NewRouter()
	New(svc, logger, validator).Register(router)
	return &harness{router: router, clientID: client.ID, productID: product.ID}
}

func limit(v float64) *float64 { return &v }

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
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
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) registerOne(t *testing.T) sampleResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/jobs", "analyst-token", registerJobRequest{
		ClientID:  h.clientID.String(),
		ProductID: h.productID.String(),
		Items:     []sampleItemInput{{Description: "bottle"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Samples, 1)
	return resp.Samples[0]
}

func TestHandlerAuth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no token")

	rec = h.do(t, http.MethodPost, "/jobs", "reviewer-token", registerJobRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code, "reviewer cannot register jobs")
}

func TestHandlerRegisterAndFetch(t *testing.T) {
	h := newHarness(t)
	sample := h.registerOne(t)

	assert.Equal(t, "REGISTERED", sample.Status)
	require.Len(t, sample.Tests, 1)
	assert.Equal(t, "PH-25", sample.Tests[0].MethodCode)

	rec := h.do(t, http.MethodGet, "/samples/"+sample.ID, "analyst-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/samples/"+id.NewSampleID().String(), "analyst-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/samples/not-a-uuid", "analyst-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWorkflow(t *testing.T) {
	h := newHarness(t)
	sample := h.registerOne(t)

	rec := h.do(t, http.MethodPost, "/samples/"+sample.ID+"/receive", "analyst-token",
		receiveRequest{Condition: "ACCEPTABLE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/sample-tests/"+sample.Tests[0].ID+"/result", "analyst-token",
		enterResultRequest{NumericValue: limit(4.2)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var completed sampleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completed))
	assert.Equal(t, "COMPLETED", completed.Status)
	require.NotNil(t, completed.Tests[0].Result)
	assert.False(t, completed.Tests[0].Result.OutOfRange)

	resultID := completed.Tests[0].Result.ID

	rec = h.do(t, http.MethodPost, "/results/"+resultID+"/review", "analyst-token",
		reviewRequest{Action: "AUTHORIZE"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "analysts cannot review")

	rec = h.do(t, http.MethodPost, "/results/"+resultID+"/review", "reviewer-token",
		reviewRequest{Action: "AUTHORIZE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var final sampleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, "AUTHORIZED", final.Status)
}

func TestHandlerStateConflictMapsTo409(t *testing.T) {
	h := newHarness(t)
	sample := h.registerOne(t)

	rec := h.do(t, http.MethodPost, "/samples/"+sample.ID+"/receive", "analyst-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/samples/"+sample.ID+"/receive", "analyst-token", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRejectValidation(t *testing.T) {
	h := newHarness(t)
	sample := h.registerOne(t)

	rec := h.do(t, http.MethodPost, "/samples/"+sample.ID+"/reject", "analyst-token",
		rejectRequest{Reason: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/samples/"+sample.ID+"/reject", "analyst-token",
		rejectRequest{Reason: "leaking cap"})
	require.Equal(t, http.StatusOK, rec.Code)

	var rejected sampleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rejected))
	assert.Equal(t, "REJECTED", rejected.Status)
}
