package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nb2py/internal/convertservice"
	"github.com/starford/nb2py/internal/index"
)

const maxNotebookBytes = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	svc     *convertservice.Service
	maxBody int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *convertservice.Service) *Handler {
	return &Handler{svc: svc, maxBody: maxNotebookBytes}
}

// notebookPath extracts the notebook path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. runs%2Ftrain.ipynb).
func notebookPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// wantsScript reports whether the Accept header prefers the raw script.
func wantsScript(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == ScriptMediaType {
			return true
		}
	}
	return false
}

func writeScript(w http.ResponseWriter, script string) {
	w.Header().Set("Content-Type", ScriptMediaType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, script)
}

// Convert handles POST /api/convert.
//
//	@Summary		Convert a notebook posted in the request body
//	@Tags			convert
//	@Accept			json
//	@Produce		json,text/x-python
//	@Success		200		{object}	ConvertResponse
//	@Failure		413		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorBody("notebook exceeds "+strconv.FormatInt(mbe.Limit, 10)+" bytes"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("notebook body is required"))
		return
	}

	res, err := h.svc.ConvertBytes(r.Context(), data)
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	w.Header().Set("X-Nb2py-Warnings", strconv.Itoa(len(res.Warnings)))
	if wantsScript(r) {
		writeScript(w, res.Script)
		return
	}
	writeJSON(w, http.StatusOK, newConvertResponse(res, h.svc.Policy()))
}

// ConvertNotebook handles POST /api/notebooks/*.
//
//	@Summary		Convert a workspace notebook and record it
//	@Tags			notebooks
//	@Produce		json
//	@Param			path	path		string	true	"Notebook path"
//	@Success		200		{object}	Conversion
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{path} [post]
func (h *Handler) ConvertNotebook(w http.ResponseWriter, r *http.Request) {
	path := notebookPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	c, err := h.svc.ConvertFile(r.Context(), path)
	if err != nil {
		writeError(w, "convert notebook", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListConversions handles GET /api/conversions.
//
//	@Summary		List recorded conversions
//	@Tags			conversions
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			sort	query		string	false	"Sort field"	Enums(converted_at, path, warnings)
//	@Success		200		{object}	ConversionListResponse
//	@Security		BearerAuth
//	@Router			/conversions [get]
func (h *Handler) ListConversions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListConversions(r.Context(), limit, offset, q.Get("sort"))
	if err != nil {
		if errors.Is(err, index.ErrUnknownSort) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeError(w, "list conversions", err)
		return
	}
	writeJSON(w, http.StatusOK, ConversionListResponse{Conversions: items, Total: total})
}

// GetConversion handles GET /api/conversions/*. With Accept: text/x-python
// the recorded script is returned instead of the ledger record.
//
//	@Summary		Get the conversion record or script of a notebook
//	@Tags			conversions
//	@Produce		json,text/x-python
//	@Param			path	path		string	true	"Notebook path"
//	@Success		200		{object}	Conversion
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/conversions/{path} [get]
func (h *Handler) GetConversion(w http.ResponseWriter, r *http.Request) {
	path := notebookPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if wantsScript(r) {
		script, err := h.svc.GetScript(r.Context(), path)
		if err != nil {
			writeError(w, "get script", err)
			return
		}
		writeScript(w, script)
		return
	}
	c, err := h.svc.GetConversion(r.Context(), path)
	if err != nil {
		writeError(w, "get conversion", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across generated scripts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
