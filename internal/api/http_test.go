package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/config"
	"github.com/nanjiek/pixiu-cow/internal/store"
)

func newTestServer() (*Server, *mux.Router, *store.Store) {
	st := store.NewStore(&config.Config{}, nil)
	srv := NewServer(config.ServerCfg{}, st)
	r := mux.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r, st
}

func TestPutThenGetFlag(t *testing.T) {
	_, r, _ := newTestServer()

	body := `{"enabled":true,"value":"variant-b","description":"new checkout"}`
	req := httptest.NewRequest(http.MethodPut, "/v1/flags/checkout.newFlow", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/flags/checkout.newFlow", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	var got FlagPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Key != "checkout.newFlow" || !got.Enabled || got.Value != "variant-b" {
		t.Fatalf("unexpected flag: %#v", got)
	}
	if got.UpdatedAtMs == 0 {
		t.Fatalf("server did not stamp UpdatedAtMs")
	}
}

func TestGetMissingFlag(t *testing.T) {
	_, r, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/flags/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPutInvalidBody(t *testing.T) {
	_, r, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPut, "/v1/flags/f1", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListFlagsWithPrefix(t *testing.T) {
	_, r, st := newTestServer()
	st.ReplaceAll(map[string]config.Flag{
		"checkout.newFlow": {Key: "checkout.newFlow", Enabled: true},
		"checkout.express": {Key: "checkout.express"},
		"search.ranking":   {Key: "search.ranking"},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/flags?prefix=checkout.", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got FlagListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Flags) != 2 {
		t.Fatalf("flags = %d", len(got.Flags))
	}
	if got.Flags[0].Key != "checkout.express" || got.Flags[1].Key != "checkout.newFlow" {
		t.Fatalf("unexpected order: %#v", got.Flags)
	}
	if got.Generation == 0 {
		t.Fatalf("generation missing from response")
	}
}

func TestDeleteFlag(t *testing.T) {
	_, r, st := newTestServer()
	st.ReplaceAll(map[string]config.Flag{"f1": {Key: "f1"}})

	req := httptest.NewRequest(http.MethodDelete, "/v1/flags/f1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	if _, ok := st.Get("f1"); ok {
		t.Fatalf("flag still present")
	}
}

func TestVersionAdvances(t *testing.T) {
	_, r, st := newTestServer()

	readGen := func() uint64 {
		req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("version status = %d", rec.Code)
		}
		var got VersionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return got.Generation
	}

	before := readGen()
	st.ReplaceAll(map[string]config.Flag{"f1": {Key: "f1"}})
	if after := readGen(); after != before+1 {
		t.Fatalf("generation %d -> %d, want +1", before, after)
	}
}
