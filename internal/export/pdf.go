package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrRendererUnavailable is returned when no document renderer is configured.
var ErrRendererUnavailable = errors.New("document renderer unavailable")

// Renderer writes a laid-out document as a byte stream.
type Renderer interface {
	Render(doc Document, w io.Writer) error
}

// A4 portrait in points, origin lower left.
const (
	pageHeight   = 842.0
	marginLeft   = 50.0
	marginTop    = 60.0
	marginBottom = 60.0
	valueColumn  = 200.0
	lineHeight   = 14.0
)

const (
	colourText      = "#333333"
	colourHeading   = "#2C3E50"
	colourSection   = "#3498DB"
	colourLabel     = "#2980B9"
	colourHighlight = "#C0392B"
)

type pdfFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Col  string `json:"col,omitempty"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  pdfFont    `json:"font"`
}

type pdfContent struct {
	Text []pdfText `json:"text"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfDescription struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

// PDFRenderer renders documents with pdfcpu from a JSON page description.
type PDFRenderer struct {
	conf *model.Configuration
}

// NewPDFRenderer creates a renderer that does not touch the user config dir.
func NewPDFRenderer() *PDFRenderer {
	api.DisableConfigDir()
	return &PDFRenderer{conf: model.NewDefaultConfiguration()}
}

// Render implements Renderer.
func (r *PDFRenderer) Render(doc Document, w io.Writer) error {
	desc := layout(doc)

	data, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to encode page description: %w", err)
	}

	if err := api.Create(nil, bytes.NewReader(data), w, r.conf); err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	return nil
}

// pager places text top-down and starts a new page when the current one is full.
type pager struct {
	pages []pdfPage
	y     float64
}

func (p *pager) newPage() {
	p.pages = append(p.pages, pdfPage{})
	p.y = pageHeight - marginTop
}

func (p *pager) ensure(lines int) {
	if len(p.pages) == 0 || p.y-float64(lines)*lineHeight < marginBottom {
		p.newPage()
	}
}

func (p *pager) text(x float64, value string, font pdfFont) {
	page := &p.pages[len(p.pages)-1]
	page.Content.Text = append(page.Content.Text, pdfText{
		Value: pdfSafe(value),
		Pos:   [2]float64{x, p.y},
		Font:  font,
	})
}

func (p *pager) advance(lines float64) {
	p.y -= lines * lineHeight
}

func layout(doc Document) pdfDescription {
	p := &pager{}
	p.newPage()

	p.text(marginLeft, doc.Title, pdfFont{Name: "Helvetica-Bold", Size: 20, Col: colourHeading})
	p.advance(2)
	for _, line := range doc.Subtitle {
		p.text(marginLeft, line, pdfFont{Name: "Helvetica", Size: 11, Col: colourText})
		p.advance(1)
	}

	for _, section := range doc.Sections {
		// Keep a heading together with its first row.
		p.advance(1)
		p.ensure(3)
		p.text(marginLeft, section.Title, pdfFont{Name: "Helvetica-Bold", Size: 14, Col: colourSection})
		p.advance(1.5)

		for _, row := range section.Rows {
			lines := row.DisplayLines()
			p.ensure(len(lines))
			valueFont := pdfFont{Name: "Helvetica", Size: 10, Col: colourText}
			labelFont := pdfFont{Name: "Helvetica-Bold", Size: 10, Col: colourLabel}
			if row.Highlight {
				valueFont = pdfFont{Name: "Helvetica-Bold", Size: 10, Col: colourHighlight}
				labelFont.Col = colourHighlight
			}
			if row.Label != "" {
				p.text(marginLeft, row.Label, labelFont)
			}
			for _, line := range lines {
				p.text(valueColumn, line, valueFont)
				p.advance(1)
			}
		}
	}

	pages := make(map[string]pdfPage, len(p.pages))
	for i, page := range p.pages {
		pages[strconv.Itoa(i+1)] = page
	}
	return pdfDescription{Paper: "A4P", Origin: "LowerLeft", Pages: pages}
}

// pdfSafe replaces characters the standard fonts cannot encode.
func pdfSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF || r < 0x20 {
			return '?'
		}
		return r
	}, s)
}
