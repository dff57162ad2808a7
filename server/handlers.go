package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/hatlonely/tablex/rdb"
	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse 错误响应，error 和 message 与界面提示的标题和描述一致
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type updateRequest struct {
	PK     workset.Record `json:"pk"`
	Fields workset.Record `json:"fields"`
}

type deleteRequest struct {
	PK workset.Record `json:"pk"`
}

type bulkUpdateRequest struct {
	PKs   []workset.Record `json:"pks"`
	Patch workset.Record   `json:"patch"`
}

type bulkDeleteRequest struct {
	PKs []workset.Record `json:"pks"`
}

type tablesResponse struct {
	Tables []workset.TableInfo `json:"tables"`
}

type recordsResponse struct {
	Records []workset.Record `json:"records"`
	Offset  int              `json:"offset"`
	Limit   int              `json:"limit"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var responseSerializer = serializer.NewJSONSerializer[any]()

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := responseSerializer.Serialize(v)
	if err != nil {
		http.Error(w, `{"error":"Error","message":"encode response failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusOf 错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, workset.ErrMalformedPatch),
		errors.Is(err, workset.ErrImmutableColumn),
		errors.Is(err, workset.ErrNoPrimaryKey):
		return http.StatusBadRequest
	case errors.Is(err, rdb.ErrConnectionNotFound),
		errors.Is(err, workset.ErrTableNotFound),
		errors.Is(err, workset.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, workset.ErrUniqueConstraint):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	requestID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "requestID", requestID, "path", r.URL.Path, "error", err.Error())
	} else {
		s.log.WarnContext(r.Context(), "request rejected", "requestID", requestID, "path", r.URL.Path, "error", err.Error())
	}

	title, description := workset.Describe(err)
	if errors.Is(err, errBadRequest) || errors.Is(err, rdb.ErrConnectionNotFound) {
		description = err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: title, Message: description, RequestID: requestID})
}

// decodeBody 解码 JSON 请求体，数字保留为 json.Number
func decodeBody[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, error) {
	var zero T
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		return zero, errors.WithMessagef(errBadRequest, "read body: %v", err)
	}
	v, err := serializer.NewJSONSerializer[T]().Deserialize(data)
	if err != nil {
		return zero, errors.WithMessagef(errBadRequest, "invalid json: %v", err)
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.WithMessagef(errBadRequest, "%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.backend.ListTables(r.Context(), chi.URLParam(r, "conn"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tables == nil {
		tables = []workset.TableInfo{}
	}
	writeJSON(w, http.StatusOK, tablesResponse{Tables: tables})
}

// handleListRecords 支持 search、offset、limit 查询参数，limit 默认且最大为 MaxLimit
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", s.options.MaxLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > s.options.MaxLimit {
		limit = s.options.MaxLimit
	}

	records, err := s.backend.SearchRecords(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), r.URL.Query().Get("search"), offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []workset.Record{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: records, Offset: offset, Limit: limit})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	record, err := decodeBody[workset.Record](s, w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(record) == 0 {
		s.writeError(w, r, errors.WithMessage(errBadRequest, "record is empty"))
		return
	}
	if err := s.backend.CreateRecord(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), record); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[updateRequest](s, w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.PK) == 0 {
		s.writeError(w, r, errors.WithMessage(errBadRequest, "pk is required"))
		return
	}
	if len(req.Fields) == 0 {
		s.writeError(w, r, errors.WithMessage(workset.ErrMalformedPatch, "fields is empty"))
		return
	}
	for name, value := range req.PK {
		if v, ok := req.Fields[name]; ok && cast.ToString(v) != cast.ToString(value) {
			s.writeError(w, r, errors.WithMessagef(workset.ErrImmutableColumn, "column %s", name))
			return
		}
	}
	if err := s.backend.UpdateRecord(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), req.PK, req.Fields); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[deleteRequest](s, w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.PK) == 0 {
		s.writeError(w, r, errors.WithMessage(errBadRequest, "pk is required"))
		return
	}
	if err := s.backend.DeleteRecord(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), req.PK); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[bulkUpdateRequest](s, w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.PKs) == 0 {
		s.writeError(w, r, errors.WithMessage(errBadRequest, "pks is required"))
		return
	}
	if len(req.Patch) == 0 {
		s.writeError(w, r, errors.WithMessage(workset.ErrMalformedPatch, "patch is empty"))
		return
	}
	for _, pk := range req.PKs {
		for name := range pk {
			if _, ok := req.Patch[name]; ok {
				s.writeError(w, r, errors.WithMessagef(workset.ErrImmutableColumn, "column %s", name))
				return
			}
		}
	}
	if err := s.backend.BulkUpdate(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), req.PKs, req.Patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "count": len(req.PKs)})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[bulkDeleteRequest](s, w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.PKs) == 0 {
		s.writeError(w, r, errors.WithMessage(errBadRequest, "pks is required"))
		return
	}
	if err := s.backend.BulkDelete(r.Context(), chi.URLParam(r, "conn"), chi.URLParam(r, "table"), req.PKs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "count": len(req.PKs)})
}
