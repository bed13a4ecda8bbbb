package storage

import (
	"io"
	"path"
	"strings"
)

// Kind groups stored evidence by purpose.
type Kind string

const (
	KindIssue      Kind = "issues"
	KindResolution Kind = "resolutions"
)

// Image is an uploaded photo waiting to be stored.
type Image struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

func (i Image) Present() bool {
	return i.Reader != nil && i.Size > 0
}

func (i Image) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(i.ContentType), "image/")
}

// Ext returns the lowercased filename extension, or "" when there is none.
func (i Image) Ext() string {
	ext := strings.ToLower(path.Ext(i.Filename))
	if len(ext) > 8 {
		return ""
	}
	return ext
}
