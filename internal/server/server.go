// Package server wraps a *wal.WAL behind a small JSON-over-HTTP admin
// surface, mirroring the shape of the teacher's chapter-one log server:
// a gorilla/mux router, one handler per operation, a shared JSON
// content-type middleware. It is operational tooling for cmd/walogd, not
// part of the core durability contract described by the library itself.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ivostoyanov/segwal"
)

func positionFromPath(raw string) (int, error) {
	return strconv.Atoi(raw)
}

// httpServer holds the WAL handle every handler operates on.
type httpServer struct {
	wal *wal.WAL
}

// NewHTTPServer builds an *http.Server listening on addr, routing to w.
func NewHTTPServer(addr string, w *wal.WAL) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: newHTTPMux(w),
	}
}

func newHTTPMux(w *wal.WAL) http.Handler {
	srv := &httpServer{wal: w}
	r := mux.NewRouter()
	r.HandleFunc("/append", srv.handleAppend).Methods("POST")
	r.HandleFunc("/records/{position}", srv.handleRead).Methods("GET")
	r.HandleFunc("/stats", srv.handleStats).Methods("GET")
	r.HandleFunc("/snapshot", srv.handleCreateSnapshot).Methods("POST")
	r.HandleFunc("/snapshot", srv.handleLoadSnapshot).Methods("GET")
	r.Use(jsonContentTypeMiddleware)
	return r
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type appendRequest struct {
	Index uint64 `json:"index"`
	Term  uint64 `json:"term"`
	Key   []byte `json:"key"`
	Val   []byte `json:"val"`
}

type appendResponse struct {
	Len       int    `json:"len"`
	LastIndex uint64 `json:"last_index"`
}

func (s *httpServer) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.wal.Append(req.Index, req.Term, req.Key, req.Val); err != nil {
		writeWALError(w, err)
		return
	}
	length, err := s.wal.Len()
	if err != nil {
		writeWALError(w, err)
		return
	}
	lastIndex, err := s.wal.LastIndex()
	if err != nil {
		writeWALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appendResponse{
		Len:       length,
		LastIndex: lastIndex,
	})
}

type recordResponse struct {
	Index uint64 `json:"index"`
	Term  uint64 `json:"term"`
	Key   string `json:"key"`
	Val   string `json:"val"`
}

func (s *httpServer) handleRead(w http.ResponseWriter, r *http.Request) {
	position, err := positionFromPath(mux.Vars(r)["position"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := s.wal.Read(position)
	if err != nil {
		writeWALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{
		Index: rec.Index,
		Term:  rec.Term,
		Key:   base64.StdEncoding.EncodeToString(rec.Key),
		Val:   base64.StdEncoding.EncodeToString(rec.Val),
	})
}

type statsResponse struct {
	Len         int    `json:"len"`
	LastIndex   uint64 `json:"last_index"`
	LowestIndex uint64 `json:"lowest_index"`
}

func (s *httpServer) handleStats(w http.ResponseWriter, r *http.Request) {
	length, err := s.wal.Len()
	if err != nil {
		writeWALError(w, err)
		return
	}
	lastIndex, err := s.wal.LastIndex()
	if err != nil {
		writeWALError(w, err)
		return
	}
	lowestIndex, err := s.wal.LowestIndex()
	if err != nil {
		writeWALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Len:         length,
		LastIndex:   lastIndex,
		LowestIndex: lowestIndex,
	})
}

type createSnapshotRequest struct {
	Data      []byte `json:"data"`
	LastIndex uint64 `json:"last_index"`
}

func (s *httpServer) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.wal.CreateSnapshot(req.Data, req.LastIndex); err != nil {
		writeWALError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loadSnapshotResponse struct {
	Data          []byte `json:"data"`
	SnapshotIndex uint64 `json:"snapshot_index"`
}

func (s *httpServer) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	data, snapIdx, err := s.wal.LoadSnapshot()
	if err != nil {
		writeWALError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadSnapshotResponse{Data: data, SnapshotIndex: snapIdx})
}

func writeWALError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wal.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, wal.ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, wal.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
