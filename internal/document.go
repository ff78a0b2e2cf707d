package internal

import (
	"fmt"
	"path/filepath"
)

type Kind string

const (
	KindText         Kind = "text"
	KindImageCaption Kind = "image_caption"
)

type Metadata struct {
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"` // 1-based, 0 when the source has no pages
	Kind   Kind   `json:"kind"`
}

type Document struct {
	Content  string
	Metadata Metadata
}

func NewTextDocument(source, content string) Document {
	return Document{
		Content:  content,
		Metadata: Metadata{Source: source, Kind: KindText},
	}
}

func NewPageDocument(source string, page int, content string) Document {
	return Document{
		Content:  content,
		Metadata: Metadata{Source: source, Page: page, Kind: KindText},
	}
}

func NewCaptionDocument(source string, page int, caption string) Document {
	return Document{
		Content:  fmt.Sprintf("[IMAGE ON PAGE %d]: %s", page, caption),
		Metadata: Metadata{Source: source, Page: page, Kind: KindImageCaption},
	}
}

type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Index    int      `json:"index"` // position within the parent document
}

func (c Chunk) Label() string {
	name := filepath.Base(c.Metadata.Source)
	if c.Metadata.Page > 0 {
		return fmt.Sprintf("%s p.%d #%d", name, c.Metadata.Page, c.Index)
	}
	return fmt.Sprintf("%s #%d", name, c.Index)
}
