package storage

import "time"

// Document is one catalog record. Optional columns are pointers: nil means
// the value was never supplied.
type Document struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalType string    `json:"original_type"`
	FileSize     *int64    `json:"file_size,omitempty"`
	WordCount    int       `json:"word_count"`
	CreatedDate  *string   `json:"created_date,omitempty"`
	AddedDate    time.Time `json:"added_date"`
	MDPath       string    `json:"md_path"`
	Notes        *string   `json:"notes,omitempty"`
}

// SearchHit is a catalog record matched by a full-text query
type SearchHit struct {
	Document *Document `json:"document"`
	Score    float64   `json:"score"`   // higher is better
	Snippet  string    `json:"snippet"` // matched terms wrapped in [ ]
}
