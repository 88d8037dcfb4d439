package metadata

import (
	"testing"

	"github.com/soundjacket/metapub/internal/models"
	"github.com/soundjacket/metapub/internal/template"
)

func sampleTemplate() template.Template {
	return template.Template{
		Name:        "Sound Jacket #{{number}}",
		Description: "A jacket & its sound",
		Attributes: []template.Attribute{
			{TraitType: "Genre", Value: "Lo-fi"},
			{TraitType: "BPM", Value: 92, DisplayType: "number"},
		},
	}
}

func TestSynthesize(t *testing.T) {
	record := Synthesize(sampleTemplate(), models.UploadResult{
		Index:    4,
		ImageURI: "https://ipfs.example/ipfs/QmImage4",
		AudioURI: "https://ipfs.example/ipfs/QmAudio",
	})

	if record.Name != "Sound Jacket #5" {
		t.Errorf("Expected expanded name, got %q", record.Name)
	}
	if record.Image != "https://ipfs.example/ipfs/QmImage4" {
		t.Errorf("Expected image URI from upload, got %q", record.Image)
	}
	if record.AnimationURL != "https://ipfs.example/ipfs/QmAudio" {
		t.Errorf("Expected animation_url from upload, got %q", record.AnimationURL)
	}
	if len(record.Attributes) != 2 {
		t.Errorf("Expected template attributes, got %d", len(record.Attributes))
	}
}

func TestSynthesizeAllKeepsOrder(t *testing.T) {
	uploads := []models.UploadResult{
		{Index: 0, ImageURI: "img0", AudioURI: "aud"},
		{Index: 1, ImageURI: "img1", AudioURI: "aud"},
		{Index: 2, ImageURI: "img2", AudioURI: "aud"},
	}
	records := SynthesizeAll(sampleTemplate(), uploads)
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Image != uploads[i].ImageURI || r.AnimationURL != uploads[i].AudioURI {
			t.Errorf("Record %d not aligned with its upload: %+v", i, r)
		}
	}
}

func TestMarshalFieldOrderAndEscaping(t *testing.T) {
	tpl := template.Template{Name: "A", Description: "x & y"}
	data, err := Marshal(Synthesize(tpl, models.UploadResult{ImageURI: "i", AudioURI: "a"}))
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	expected := `{"name":"A","description":"x & y","image":"i","animation_url":"a","attributes":[]}`
	if string(data) != expected {
		t.Errorf("Expected:\n%s\nGot:\n%s", expected, data)
	}
}
