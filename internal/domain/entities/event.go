// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package entities

import (
	"errors"
	"time"
)

// FileEvent is published on the message bus whenever a file changes state
type FileEvent struct {
	Action    string    `json:"action"`
	ID        string    `json:"id,omitempty"`
	MD5       string    `json:"md5,omitempty"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexRequest asks the service to index an object that is already stored
type IndexRequest struct {
	File FileInfo `json:"file"`
	Path string   `json:"path"`
	MD5  string   `json:"md5"`
}

// Validate checks the request carries everything needed to build a FileDoc
func (r *IndexRequest) Validate() error {
	if r.Path == "" {
		return errors.New("path is required")
	}
	if r.MD5 == "" {
		return errors.New("md5 is required")
	}
	return r.File.Validate()
}
