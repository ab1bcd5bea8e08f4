package api

import (
	"github.com/starford/nb2py/internal/index"
	"github.com/starford/nb2py/internal/models"
	"github.com/starford/nb2py/internal/transcoder"
)

// ScriptMediaType is served when the client asks for the raw script.
const ScriptMediaType = "text/x-python"

// ConvertResponse is returned by POST /api/convert.
type ConvertResponse struct {
	Script        string               `json:"script" validate:"required"`
	Header        []string             `json:"header" validate:"required"`
	Warnings      []transcoder.Warning `json:"warnings" validate:"required"`
	CodeCells     int                  `json:"code_cells" example:"3"`
	MarkdownCells int                  `json:"markdown_cells" example:"1"`
	Policy        string               `json:"policy" example:"drop"`
}

// Conversion is a ledger record (aliased from the domain layer).
type Conversion = models.Conversion

// ConversionListResponse wraps paginated conversion listings.
type ConversionListResponse struct {
	Conversions []Conversion `json:"conversions" validate:"required"`
	Total       int          `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit (aliased from the ledger).
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

func newConvertResponse(res *transcoder.Result, policy transcoder.Policy) ConvertResponse {
	header := res.Header
	if header == nil {
		header = []string{}
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []transcoder.Warning{}
	}
	return ConvertResponse{
		Script:        res.Script,
		Header:        header,
		Warnings:      warnings,
		CodeCells:     res.CodeCells,
		MarkdownCells: res.MarkdownCells,
		Policy:        string(policy),
	}
}
