package extract

import "context"

// StubClient returns a deterministic extraction for any document, shaped
// like a small residential framing plan. It exists for offline development
// and for tests that need the pipeline to produce real inferences without
// the extraction service.
type StubClient struct {
	// Err, when set, is returned by every call instead of the canned result.
	Err error
}

// NewStubClient creates a stub extraction client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Extract implements Client with canned framing-plan blocks.
func (s *StubClient) Extract(ctx context.Context, req Request) (*Extraction, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Extraction{
		DocumentID: req.Document.ID,
		Pages:      3,
		Text: []TextBlock{
			{Page: 1, Raw: "GENERAL NOTES: ALL FRAMING LUMBER TO BE SPF NO.2 OR BETTER U.N.O.", Confidence: 0.84},
			{Page: 2, Raw: `2X6 STUDS AT 16" O.C. TYP. ALL EXTERIOR WALLS`, Confidence: 0.88},
			{Page: 2, Raw: "DESIGN LIVE LOAD: 40 PSF (RESIDENTIAL)", Confidence: 0.90},
		},
		Tables: []TableBlock{
			{
				Page:    1,
				Caption: "WALL FRAMING",
				Headers: []string{"MEMBER", "SIZE", "SPACING"},
				Rows: [][]string{
					{"EXTERIOR STUD", "2x6", `16" O.C.`},
					{"INTERIOR STUD", "2x4", `16" O.C.`},
				},
				Confidence: 0.82,
			},
		},
		Symbols: []SymbolBlock{
			{
				Page:   2,
				Symbol: "stud-wall",
				Count:  14,
				Properties: map[string]string{
					"size":    "2x6",
					"spacing": "16",
				},
				Confidence: 0.80,
			},
		},
		Dimensions: []DimensionBlock{
			{Page: 2, Label: "STUD SPACING", Value: 16, Unit: "in", Confidence: 0.92},
			{Page: 3, Label: "JOIST SPAN", Value: 14.5, Unit: "ft", Confidence: 0.87},
		},
		Schedules: []ScheduleBlock{
			{
				Page:    3,
				Name:    "FLOOR JOIST SCHEDULE",
				Columns: []string{"MARK", "SIZE", "SPECIES", "SPACING"},
				Rows: []map[string]string{
					{"MARK": "FJ-1", "SIZE": "2x10", "SPECIES": "SPF", "SPACING": `16"`},
					{"MARK": "FJ-2", "SIZE": "2x8", "SPECIES": "SPF", "SPACING": `24"`},
				},
				Confidence: 0.97,
			},
		},
		Images: []ImageBlock{
			{Page: 2, URI: "stub://doc/" + req.Document.ID + "/page-2.png", MediaType: "image/png", Description: "second floor framing plan", Confidence: 0.50},
		},
	}, nil
}

// Ensure interfaces are implemented at compile time.
var _ Client = (*StubClient)(nil)
