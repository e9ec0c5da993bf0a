package ledger

import "fmt"

// Content is the typed evidence payload, a tagged union keyed by the
// evidence type. Exactly one field is non-nil on valid evidence, so
// strategies can switch on the evidence type and dereference the matching
// payload without probing untyped fields.
type Content struct {
	Text      *TextContent      `json:"text,omitempty"`
	Image     *ImageContent     `json:"image,omitempty"`
	Table     *TableContent     `json:"table,omitempty"`
	Symbol    *SymbolContent    `json:"symbol,omitempty"`
	Dimension *DimensionContent `json:"dimension,omitempty"`
	Schedule  *ScheduleContent  `json:"schedule,omitempty"`
}

// TextContent is free text from plan notes and callouts.
type TextContent struct {
	// Raw is the extracted text, whitespace-normalized by the extractor.
	Raw string `json:"raw"`
}

// ImageContent is a rendered page region for vision-based analysis.
type ImageContent struct {
	// URI locates the rendered image (file or object-store reference).
	URI string `json:"uri,omitempty"`

	// MediaType is the image MIME type (e.g., "image/png").
	MediaType string `json:"media_type"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Description is the vision extractor's caption for the region.
	Description string `json:"description,omitempty"`
}

// TableContent is a generic tabular extraction.
type TableContent struct {
	Caption string     `json:"caption,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// SymbolContent is a recognized plan symbol and its annotated properties.
type SymbolContent struct {
	// Symbol is the recognized symbol code (e.g., "2x6-stud").
	Symbol string `json:"symbol"`

	// Count is how many instances were found in the region.
	Count int `json:"count"`

	// Properties carries annotated key/value attributes (spacing, grade, ...).
	Properties map[string]string `json:"properties,omitempty"`
}

// DimensionContent is a measured or annotated dimension.
type DimensionContent struct {
	// Label is the annotation text near the dimension, if any.
	Label string `json:"label,omitempty"`

	// Value is the numeric magnitude.
	Value float64 `json:"value"`

	// Unit is the measurement unit (e.g., "in", "ft", "psf").
	Unit string `json:"unit"`
}

// ScheduleContent is a structured construction schedule with named columns
// and one map per row keyed by column name.
type ScheduleContent struct {
	// Name is the schedule title (e.g., "FLOOR JOIST SCHEDULE").
	Name string `json:"name"`

	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// populated returns the evidence types whose payloads are set.
func (c *Content) populated() []EvidenceType {
	var types []EvidenceType
	if c.Text != nil {
		types = append(types, EvidenceText)
	}
	if c.Image != nil {
		types = append(types, EvidenceImage)
	}
	if c.Table != nil {
		types = append(types, EvidenceTable)
	}
	if c.Symbol != nil {
		types = append(types, EvidenceSymbol)
	}
	if c.Dimension != nil {
		types = append(types, EvidenceDimension)
	}
	if c.Schedule != nil {
		types = append(types, EvidenceSchedule)
	}
	return types
}

// Validate checks that exactly one payload is set, that it corresponds to
// the declared evidence type, and that the payload itself is well formed.
func (c *Content) Validate(t EvidenceType) error {
	set := c.populated()
	if len(set) == 0 {
		return ErrEmptyContent
	}
	if len(set) > 1 {
		return fmt.Errorf("%w: found %v", ErrAmbiguousContent, set)
	}
	if set[0] != t {
		return fmt.Errorf("%w: payload is %q, evidence type is %q", ErrContentMismatch, set[0], t)
	}

	switch t {
	case EvidenceText:
		if c.Text.Raw == "" {
			return fmt.Errorf("%w: text payload has no raw text", ErrEmptyContent)
		}
	case EvidenceImage:
		if c.Image.MediaType == "" {
			return fmt.Errorf("%w: image payload has no media type", ErrEmptyContent)
		}
	case EvidenceTable:
		if len(c.Table.Headers) == 0 {
			return fmt.Errorf("%w: table payload has no headers", ErrEmptyContent)
		}
	case EvidenceSymbol:
		if c.Symbol.Symbol == "" {
			return fmt.Errorf("%w: symbol payload has no symbol code", ErrEmptyContent)
		}
	case EvidenceDimension:
		if c.Dimension.Unit == "" {
			return fmt.Errorf("%w: dimension payload has no unit", ErrEmptyContent)
		}
	case EvidenceSchedule:
		if len(c.Schedule.Columns) == 0 {
			return fmt.Errorf("%w: schedule payload has no columns", ErrEmptyContent)
		}
	}
	return nil
}

// TextContentOf wraps raw text in a Content union.
func TextContentOf(raw string) Content {
	return Content{Text: &TextContent{Raw: raw}}
}

// TableContentOf wraps headers and rows in a Content union.
func TableContentOf(caption string, headers []string, rows [][]string) Content {
	return Content{Table: &TableContent{Caption: caption, Headers: headers, Rows: rows}}
}

// SymbolContentOf wraps a symbol and its properties in a Content union.
func SymbolContentOf(symbol string, count int, properties map[string]string) Content {
	return Content{Symbol: &SymbolContent{Symbol: symbol, Count: count, Properties: properties}}
}

// DimensionContentOf wraps a dimension value in a Content union.
func DimensionContentOf(label string, value float64, unit string) Content {
	return Content{Dimension: &DimensionContent{Label: label, Value: value, Unit: unit}}
}

// ScheduleContentOf wraps a named schedule in a Content union.
func ScheduleContentOf(name string, columns []string, rows []map[string]string) Content {
	return Content{Schedule: &ScheduleContent{Name: name, Columns: columns, Rows: rows}}
}

// ImageContentOf wraps an image reference in a Content union.
func ImageContentOf(uri, mediaType, description string) Content {
	return Content{Image: &ImageContent{URI: uri, MediaType: mediaType, Description: description}}
}
