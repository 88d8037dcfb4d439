package metadata

import (
	"bytes"
	"encoding/json"

	"github.com/soundjacket/metapub/internal/models"
	"github.com/soundjacket/metapub/internal/template"
)

// Record is the metadata document published for one item
type Record struct {
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Image        string               `json:"image"`
	AnimationURL string               `json:"animation_url"`
	Attributes   []template.Attribute `json:"attributes"`
}

// Synthesize combines the shared template with an item's content references
func Synthesize(tpl template.Template, upload models.UploadResult) Record {
	attrs := tpl.Attributes
	if attrs == nil {
		attrs = []template.Attribute{}
	}
	return Record{
		Name:         template.Expand(tpl.Name, upload.Index),
		Description:  template.Expand(tpl.Description, upload.Index),
		Image:        upload.ImageURI,
		AnimationURL: upload.AudioURI,
		Attributes:   attrs,
	}
}

// SynthesizeAll builds the index-aligned collection
func SynthesizeAll(tpl template.Template, uploads []models.UploadResult) []Record {
	records := make([]Record, len(uploads))
	for i, u := range uploads {
		records[i] = Synthesize(tpl, u)
	}
	return records
}

// Marshal encodes v as compact JSON without HTML escaping
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
