// Package extract defines the boundary to the external extraction service
// that turns plan documents into typed blocks (text, tables, symbols,
// dimensions, schedules, page images). The pipeline only ever talks to the
// Client interface; production wires the HTTP client, development and tests
// wire the deterministic stub.
package extract

import "context"

// Document describes one input document handed to a pipeline run.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`

	// Type labels the drawing kind (e.g., "framing_plan", "floor_plan").
	Type string `json:"type"`
}

// Request asks the extraction service for everything it can find in a
// document, optionally with sibling documents for cross-sheet references.
type Request struct {
	Document Document   `json:"document"`
	Siblings []Document `json:"siblings,omitempty"`

	// MaxPages bounds extraction; zero means the service default.
	MaxPages int `json:"max_pages,omitempty"`
}

// TextBlock is free text found on a page.
type TextBlock struct {
	Page       int     `json:"page"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
}

// TableBlock is a generic table found on a page.
type TableBlock struct {
	Page       int        `json:"page"`
	Caption    string     `json:"caption,omitempty"`
	Headers    []string   `json:"headers"`
	Rows       [][]string `json:"rows"`
	Confidence float64    `json:"confidence"`
}

// SymbolBlock is a recognized plan symbol with annotated properties.
type SymbolBlock struct {
	Page       int               `json:"page"`
	Symbol     string            `json:"symbol"`
	Count      int               `json:"count"`
	Properties map[string]string `json:"properties,omitempty"`
	Confidence float64           `json:"confidence"`
}

// DimensionBlock is a measured or annotated dimension.
type DimensionBlock struct {
	Page       int     `json:"page"`
	Label      string  `json:"label,omitempty"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// ScheduleBlock is a structured construction schedule.
type ScheduleBlock struct {
	Page       int                 `json:"page"`
	Name       string              `json:"name"`
	Columns    []string            `json:"columns"`
	Rows       []map[string]string `json:"rows"`
	Confidence float64             `json:"confidence"`
}

// ImageBlock is a rendered page region for vision analysis.
type ImageBlock struct {
	Page        int     `json:"page"`
	URI         string  `json:"uri,omitempty"`
	MediaType   string  `json:"media_type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Extraction is the full result for one document.
type Extraction struct {
	DocumentID string `json:"document_id"`
	Pages      int    `json:"pages"`

	Text       []TextBlock      `json:"text,omitempty"`
	Tables     []TableBlock     `json:"tables,omitempty"`
	Symbols    []SymbolBlock    `json:"symbols,omitempty"`
	Dimensions []DimensionBlock `json:"dimensions,omitempty"`
	Schedules  []ScheduleBlock  `json:"schedules,omitempty"`
	Images     []ImageBlock     `json:"images,omitempty"`
}

// Client is the extraction-service contract the pipeline depends on.
type Client interface {
	// Extract runs the full extraction for one document. Implementations
	// must respect context cancellation and deadlines.
	Extract(ctx context.Context, req Request) (*Extraction, error)
}
