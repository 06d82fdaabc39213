// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package entities contains the domain types of the image host.
package entities

import (
	"errors"
	"path"
	"strings"
	"time"
)

// FileInfo is the metadata supplied with an upload
type FileInfo struct {
	Name        string `json:"name"`
	Tags        string `json:"tags,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Ext         string `json:"ext,omitempty"`
}

// Validate checks the upload metadata and fills Ext from Name when missing
func (f *FileInfo) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("file name is required")
	}
	if f.Size < 0 {
		return errors.New("file size must not be negative")
	}
	if f.Ext == "" {
		f.Ext = ExtOf(f.Name)
	}
	return nil
}

// ExtOf returns the lower-cased extension of name including the leading dot
func ExtOf(name string) string {
	return strings.ToLower(path.Ext(name))
}

// FileDoc is the document stored in the search index for every hosted file
type FileDoc struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Tags        string    `json:"tags,omitempty"`
	Path        string    `json:"path"`
	MD5         string    `json:"md5"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Ext         string    `json:"ext,omitempty"`
	CreateDate  time.Time `json:"create_date"`
}

// NewFileDoc copies the upload metadata into a new document
func NewFileDoc(id string, info FileInfo, objectPath, md5 string, created time.Time) *FileDoc {
	return &FileDoc{
		ID:          id,
		Name:        info.Name,
		Tags:        info.Tags,
		Path:        objectPath,
		MD5:         md5,
		ContentType: info.ContentType,
		Size:        info.Size,
		Ext:         info.Ext,
		CreateDate:  created.UTC(),
	}
}

// FileQuery is a paged tag search
type FileQuery struct {
	Tags      string `json:"tags,omitempty"`
	PageIndex int    `json:"page_index"`
	PageSize  int    `json:"page_size"`
}

// Normalize clamps the page index to >= 0 and the page size to [1, maxSize],
// replacing a non-positive size with defaultSize.
func (q FileQuery) Normalize(defaultSize, maxSize int) FileQuery {
	q.Tags = strings.TrimSpace(q.Tags)
	if q.PageIndex < 0 {
		q.PageIndex = 0
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultSize
	}
	if q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	return q
}

// Offset is the index of the first hit of the page
func (q FileQuery) Offset() int {
	return q.PageIndex * q.PageSize
}

// HasTags reports whether the query filters on tags
func (q FileQuery) HasTags() bool {
	return strings.TrimSpace(q.Tags) != ""
}

// Page is one page of search results
type Page[T any] struct {
	Content   []T   `json:"content"`
	Total     int64 `json:"total"`
	PageIndex int   `json:"page_index"`
	PageSize  int   `json:"page_size"`
}

// TotalPages is the number of pages needed for Total items
func (p Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// UploadResult is returned to the uploader
type UploadResult struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	MD5       string `json:"md5"`
	Duplicate bool   `json:"duplicate"`
}
