package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/config"
	"github.com/nanjiek/pixiu-cow/internal/repo"
	"github.com/nanjiek/pixiu-cow/internal/store"
)

// Server exposes the flag store over HTTP. Every read handler resolves
// against a single snapshot, so responses are internally consistent
// even while writers are publishing.
type Server struct {
	cfg   config.ServerCfg
	flags *store.Store
	srv   *http.Server
}

func NewServer(cfg config.ServerCfg, flags *store.Store) *Server {
	return &Server{
		cfg:   cfg,
		flags: flags,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/flags", s.listFlagsHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/flags/{key}", s.getFlagHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/flags/{key}", s.putFlagHandler).Methods(http.MethodPut)
	r.HandleFunc("/v1/flags/{key}", s.deleteFlagHandler).Methods(http.MethodDelete)
	r.HandleFunc("/v1/version", s.versionHandler).Methods(http.MethodGet)
}

func (s *Server) ListenAndServe() error {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	s.srv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ---------------- Handlers ----------------

func (s *Server) listFlagsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	snap := s.flags.Snapshot()
	set := snap.Value()
	keys := set.Index.WithPrefix(r.URL.Query().Get("prefix"))

	resp := FlagListResponse{
		Generation: snap.Generation(),
		Flags:      make([]FlagPayload, 0, len(keys)),
	}
	for _, k := range keys {
		f, ok := set.Flags[k]
		if !ok {
			continue
		}
		resp.Flags = append(resp.Flags, toPayload(f))
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) getFlagHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	key := mux.Vars(r)["key"]
	f, ok := s.flags.Get(key)
	if !ok {
		errResp(w, http.StatusNotFound, "flag not found: "+key)
		return
	}
	_ = json.NewEncoder(w).Encode(toPayload(f))
}

func (s *Server) putFlagHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	key := mux.Vars(r)["key"]
	var req FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	f := config.Flag{
		Key:         key,
		Enabled:     req.Enabled,
		Value:       req.Value,
		Description: req.Description,
		UpdatedAtMs: req.UpdatedAtMs,
	}
	if err := s.flags.Upsert(r.Context(), f); err != nil {
		if errors.Is(err, repo.ErrStaleWrite) {
			errResp(w, http.StatusConflict, "a newer version of this flag exists")
			return
		}
		errResp(w, http.StatusInternalServerError, "failed to save flag: "+err.Error())
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "key": key})
}

func (s *Server) deleteFlagHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	key := mux.Vars(r)["key"]
	if err := s.flags.Delete(r.Context(), key); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to delete flag: "+err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "key": key})
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(VersionResponse{Generation: s.flags.Generation()})
}

func toPayload(f config.Flag) FlagPayload {
	return FlagPayload{
		Key:         f.Key,
		Enabled:     f.Enabled,
		Value:       f.Value,
		Description: f.Description,
		UpdatedAtMs: f.UpdatedAtMs,
	}
}

func errResp(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
