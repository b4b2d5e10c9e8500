package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/leapstack-labs/remotesql/pkg/adapter"
	"github.com/leapstack-labs/remotesql/pkg/remotetable"
)

// TruncatedHeader is set to "true" when MaxRows cut a result set short.
const TruncatedHeader = "X-Remotesql-Truncated"

// errorBody is the JSON body of every failed request.
type errorBody struct {
	Error string `json:"error"`
	Data  string `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, data string) {
	writeJSON(w, status, errorBody{Error: msg, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGet upgrades to the socket protocol, runs ?sql=... or, without
// either, downloads the database file.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if isWebSocket(r) {
		s.handleSocket(w, r)
		return
	}
	if sql := r.URL.Query().Get("sql"); sql != "" {
		s.runSQL(w, r, sql)
		return
	}
	s.serveDatabase(w, r)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "statement too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body", err.Error())
		return
	}
	s.runSQL(w, r, string(body))
}

func (s *Server) runSQL(w http.ResponseWriter, r *http.Request, sql string) {
	if strings.TrimSpace(sql) == "" {
		writeError(w, http.StatusBadRequest, "Invalid SQL", "empty statement")
		return
	}
	if s.readOnly && !IsReadOnly(sql) {
		writeError(w, http.StatusBadRequest, "read-only server", "")
		return
	}

	body, truncated, err := s.execute(r.Context(), sql)
	if err != nil {
		s.logger.Debug("statement failed", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid SQL", err.Error())
		return
	}

	if truncated {
		w.Header().Set(TruncatedHeader, "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// execute runs sql and renders its rows as a JSON array of objects whose
// keys follow the select list order.
func (s *Server) execute(ctx context.Context, sql string) ([]byte, bool, error) {
	rs, err := s.engine.QueryAll(ctx, sql, s.maxRows)
	if err != nil {
		return nil, false, err
	}
	body, err := EncodeRows(rs)
	if err != nil {
		return nil, false, err
	}
	return body, rs.Truncated, nil
}

// EncodeRows renders a result set as a JSON array of ordered objects.
func EncodeRows(rs *adapter.ResultSet) ([]byte, error) {
	return remotetable.Records(rs.Columns, rs.Rows).MarshalJSON()
}

func (s *Server) serveDatabase(w http.ResponseWriter, r *http.Request) {
	path := s.engine.DatabasePath()
	if path == "" {
		writeError(w, http.StatusNotFound, "no database file", "")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "no database file", "")
		return
	}

	w.Header().Set("Content-Disposition",
		"attachment; filename="+strconv.Quote(filepath.Base(path)))
	http.ServeFile(w, r, path)
}
