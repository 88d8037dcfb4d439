package models

import "time"

// AssetKind distinguishes the two payloads attached to an item
type AssetKind string

const (
	KindImage AssetKind = "image"
	KindAudio AssetKind = "audio"
)

// AssetFile is a located binary payload for an item
type AssetFile struct {
	Index    int       `json:"index"`
	Kind     AssetKind `json:"kind"`
	Path     string    `json:"path"`
	Ext      string    `json:"ext"`       // "jpeg", "png", "gif", "mp3"
	MIMEType string    `json:"mime_type"` // sniffed from the content
	Data     []byte    `json:"-"`
}

// UploadResult holds the content references produced for one item
type UploadResult struct {
	Index    int    `json:"index"`
	ImageURI string `json:"image_uri"`
	AudioURI string `json:"audio_uri"`
}

// CatalogEntry is the denormalized record written to the catalog for each published item
type CatalogEntry struct {
	RunID        string    `json:"run_id" bson:"run_id" parquet:"run_id"`
	Index        int       `json:"index" bson:"index" parquet:"index"`
	Name         string    `json:"name" bson:"name" parquet:"name"`
	Description  string    `json:"description" bson:"description" parquet:"description"`
	Image        string    `json:"image" bson:"image" parquet:"image"`
	AnimationURL string    `json:"animation_url" bson:"animation_url" parquet:"animation_url"`
	MetaHash     string    `json:"meta_hash" bson:"meta_hash" parquet:"meta_hash"`
	IndexedAt    time.Time `json:"indexed_at" bson:"indexed_at" parquet:"indexed_at,timestamp"`
}
