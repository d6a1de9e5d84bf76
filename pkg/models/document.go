// Package models defines the core data types shared across Charlotte.
package models

import (
	"time"
)

// Source describes where a document came from.
type Source struct {
	// Label is a human-readable name for the source (e.g. "handbook").
	Label string `json:"label,omitempty"`

	// URI is the original location (file path, URL, s3:// address).
	URI string `json:"uri,omitempty"`

	// Type is the source kind (e.g. "file", "web", "s3", "manual").
	Type string `json:"type,omitempty"`
}

// Document is a knowledge entry available to retrieval.
// The ID joins the text index with the summary and key-point vector collections.
type Document struct {
	// ID is the globally unique identifier.
	ID string `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Summary is a short abstract of the content.
	Summary string `json:"summary"`

	// KeyPoints lists the important facts, one per line.
	KeyPoints string `json:"key_points"`

	// Content is the full text.
	Content string `json:"content"`

	// CreatedAt is when the document was added.
	CreatedAt time.Time `json:"created_at"`

	// Source records the document's provenance.
	Source Source `json:"source"`

	// Timezone is the IANA zone the content's dates refer to.
	Timezone string `json:"timezone,omitempty"`
}

// RawDocument is unprocessed content submitted for ingestion.
// Summary, key points and (when empty) title are derived from Content.
type RawDocument struct {
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Source      Source `json:"source"`
	Timezone    string `json:"timezone,omitempty"`
}

// DocumentMetadata holds fields extracted while parsing raw content.
type DocumentMetadata struct {
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	Author      string         `json:"author,omitempty" yaml:"author,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Language    string         `json:"language,omitempty" yaml:"language,omitempty"`
	Custom      map[string]any `json:"custom,omitempty" yaml:"custom,omitempty"`
}
