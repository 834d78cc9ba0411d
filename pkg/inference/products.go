package inference

import (
	"fmt"
	"math"
	"strings"

	"github.com/3leaps/goextract/pkg/field"
	"github.com/3leaps/goextract/pkg/sdkerr"
)

// Built-in products.
var (
	Extraction     = NewProduct("Extraction", "extraction", parseExtraction)
	Classification = NewProduct("Classification", "classification", parseClassification)
	Split          = NewProduct("Split", "split", parseSplit)
	Crop           = NewProduct("Crop", "crop", parseCrop)
	OCR            = NewProduct("OCR", "ocr", parseOCR)
)

const resultPath = "inference.result"

// ExtractionResult holds the extracted field tree plus optional extras.
type ExtractionResult struct {
	Fields  *field.InferenceFields
	RawText *RawText
	RAG     *RAGMetadata
}

// RawText is the full document text, when requested.
type RawText struct {
	Pages []RawTextPage
}

// RawTextPage is the text of a single page.
type RawTextPage struct {
	Content string
}

// String joins the pages with blank lines.
func (r *RawText) String() string {
	if r == nil {
		return ""
	}
	parts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n\n")
}

// RAGMetadata reports retrieval-augmented generation details.
type RAGMetadata struct {
	// RetrievedDocumentID is nil when no document matched.
	RetrievedDocumentID *string
}

func (r ExtractionResult) String() string {
	var b strings.Builder
	b.WriteString("Fields\n======\n")
	b.WriteString(r.Fields.String())
	if r.RawText != nil {
		b.WriteString("\n\nRaw Text\n========\n")
		b.WriteString(r.RawText.String())
	}
	return b.String()
}

func parseExtraction(raw map[string]any) (ExtractionResult, error) {
	var out ExtractionResult

	rawFields, ok := raw["fields"]
	if !ok {
		return out, &sdkerr.DeserializationError{Message: "missing fields", Path: resultPath}
	}
	fieldsObj, ok := rawFields.(map[string]any)
	if !ok {
		return out, &sdkerr.DeserializationError{Message: "fields must be an object", Path: resultPath + ".fields", Node: snippet(rawFields)}
	}
	fields, err := field.NewInferenceFields(fieldsObj, 0)
	if err != nil {
		return out, fmt.Errorf("%s.fields: %w", resultPath, err)
	}
	out.Fields = fields

	if rt, ok := raw["raw_text"].(map[string]any); ok {
		out.RawText = &RawText{}
		pages, _ := rt["pages"].([]any)
		for i, p := range pages {
			page, ok := p.(map[string]any)
			if !ok {
				return out, &sdkerr.DeserializationError{Message: "page must be an object", Path: fmt.Sprintf("%s.raw_text.pages[%d]", resultPath, i)}
			}
			out.RawText.Pages = append(out.RawText.Pages, RawTextPage{Content: stringOr(page["content"])})
		}
	}

	if rag, ok := raw["rag"].(map[string]any); ok {
		out.RAG = &RAGMetadata{}
		if id, ok := rag["retrieved_document_id"].(string); ok {
			out.RAG.RetrievedDocumentID = &id
		}
	}

	return out, nil
}

// ClassificationResult holds the predicted document type.
type ClassificationResult struct {
	DocumentType *field.SimpleField
}

func (r ClassificationResult) String() string {
	v := ""
	if r.DocumentType != nil {
		v = r.DocumentType.String()
	}
	return "Classification\n==============\n:Document Type: " + v
}

func parseClassification(raw map[string]any) (ClassificationResult, error) {
	var out ClassificationResult
	cls, ok := raw["classification"].(map[string]any)
	if !ok {
		return out, &sdkerr.DeserializationError{Message: "missing classification object", Path: resultPath}
	}
	node, ok := cls["document_type"]
	if !ok {
		return out, &sdkerr.DeserializationError{Message: "missing document_type", Path: resultPath + ".classification"}
	}
	f, err := field.CreateField(node, 0)
	if err != nil {
		return out, fmt.Errorf("%s.classification.document_type: %w", resultPath, err)
	}
	sf, ok := f.(*field.SimpleField)
	if !ok {
		return out, &sdkerr.DeserializationError{
			Message: fmt.Sprintf("expected SimpleField, got %s", f.Kind()),
			Path:    resultPath + ".classification.document_type",
		}
	}
	out.DocumentType = sf
	return out, nil
}

// SplitRange is one logical document found inside a multi-document file.
type SplitRange struct {
	// PageRange holds the zero-based first and last page, inclusive.
	PageRange    [2]int
	DocumentType string
}

// SplitResult lists the detected sub-documents in page order.
type SplitResult struct {
	Splits []SplitRange
}

func (r SplitResult) String() string {
	var b strings.Builder
	b.WriteString("Splits\n======")
	for _, s := range r.Splits {
		fmt.Fprintf(&b, "\n* :Page Range: %d-%d\n  :Document Type: %s", s.PageRange[0], s.PageRange[1], s.DocumentType)
	}
	return b.String()
}

func parseSplit(raw map[string]any) (SplitResult, error) {
	var out SplitResult
	entries, err := arrayAt(raw, "splits")
	if err != nil {
		return out, err
	}
	for i, e := range entries {
		path := fmt.Sprintf("%s.splits[%d]", resultPath, i)
		m, ok := e.(map[string]any)
		if !ok {
			return out, &sdkerr.DeserializationError{Message: "split must be an object", Path: path, Node: snippet(e)}
		}
		rng, ok := m["page_range"].([]any)
		if !ok || len(rng) != 2 {
			return out, &sdkerr.DeserializationError{Message: "page_range must be a [start, end] pair", Path: path + ".page_range", Node: snippet(m["page_range"])}
		}
		var s SplitRange
		for j, v := range rng {
			n, ok := v.(float64)
			if !ok || n != math.Trunc(n) || n < 0 {
				return out, &sdkerr.DeserializationError{Message: "page index must be a non-negative integer", Path: fmt.Sprintf("%s.page_range[%d]", path, j)}
			}
			s.PageRange[j] = int(n)
		}
		s.DocumentType = stringOr(m["document_type"])
		out.Splits = append(out.Splits, s)
	}
	return out, nil
}

// CropRegion is one detected object on a page.
type CropRegion struct {
	Location   *field.Location
	ObjectType string
}

// CropResult lists detected objects.
type CropResult struct {
	Crops []CropRegion
}

func (r CropResult) String() string {
	var b strings.Builder
	b.WriteString("Crops\n=====")
	for _, c := range r.Crops {
		page := 0
		if c.Location != nil {
			page = c.Location.Page
		}
		fmt.Fprintf(&b, "\n* :Object Type: %s\n  :Page: %d", c.ObjectType, page)
	}
	return b.String()
}

func parseCrop(raw map[string]any) (CropResult, error) {
	var out CropResult
	entries, err := arrayAt(raw, "crops")
	if err != nil {
		return out, err
	}
	for i, e := range entries {
		path := fmt.Sprintf("%s.crops[%d]", resultPath, i)
		m, ok := e.(map[string]any)
		if !ok {
			return out, &sdkerr.DeserializationError{Message: "crop must be an object", Path: path, Node: snippet(e)}
		}
		loc, err := field.ParseLocation(m["location"])
		if err != nil {
			return out, &sdkerr.DeserializationError{Message: "bad location", Path: path + ".location", Err: err}
		}
		out.Crops = append(out.Crops, CropRegion{Location: loc, ObjectType: stringOr(m["object_type"])})
	}
	return out, nil
}

// OCRWord is a single recognized word and its outline.
type OCRWord struct {
	Content string
	Polygon field.Polygon
}

// OCRPage holds the words of one page in reading order.
type OCRPage struct {
	Words   []OCRWord
	Content string
}

// OCRResult holds per-page text.
type OCRResult struct {
	Pages []OCRPage
}

func (r OCRResult) String() string {
	var b strings.Builder
	b.WriteString("Pages\n=====")
	for i, p := range r.Pages {
		fmt.Fprintf(&b, "\n\nPage %d\n------\n%s", i, p.Content)
	}
	return b.String()
}

func parseOCR(raw map[string]any) (OCRResult, error) {
	var out OCRResult
	pages, err := arrayAt(raw, "pages")
	if err != nil {
		return out, err
	}
	for i, p := range pages {
		path := fmt.Sprintf("%s.pages[%d]", resultPath, i)
		pm, ok := p.(map[string]any)
		if !ok {
			return out, &sdkerr.DeserializationError{Message: "page must be an object", Path: path, Node: snippet(p)}
		}
		page := OCRPage{Content: stringOr(pm["content"])}
		words, _ := pm["words"].([]any)
		for j, w := range words {
			wm, ok := w.(map[string]any)
			if !ok {
				return out, &sdkerr.DeserializationError{Message: "word must be an object", Path: fmt.Sprintf("%s.words[%d]", path, j)}
			}
			poly, err := field.ParsePolygon(wm["polygon"])
			if err != nil {
				return out, &sdkerr.DeserializationError{Message: "bad polygon", Path: fmt.Sprintf("%s.words[%d].polygon", path, j), Err: err}
			}
			page.Words = append(page.Words, OCRWord{Content: stringOr(wm["content"]), Polygon: poly})
		}
		if page.Content == "" && len(page.Words) > 0 {
			parts := make([]string, len(page.Words))
			for j, w := range page.Words {
				parts[j] = w.Content
			}
			page.Content = strings.Join(parts, " ")
		}
		out.Pages = append(out.Pages, page)
	}
	return out, nil
}

func arrayAt(raw map[string]any, key string) ([]any, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, &sdkerr.DeserializationError{Message: key + " must be an array", Path: resultPath + "." + key, Node: snippet(v)}
	}
	return arr, nil
}
