// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// NATS subject prefixes
const (
	SubjectPrefix     = "imagehost."
	FileEventPrefix   = SubjectPrefix + "file."
	IndexRequestTopic = SubjectPrefix + "index.request"
)

// File event actions
const (
	ActionUploaded = "uploaded"
	ActionIndexed  = "indexed"
	ActionDeleted  = "deleted"
)

// Message processing constants
const (
	DefaultQueue = "imagehost.indexer.queue"
	RefreshTrue  = "true" // search engine refresh parameter
	ReplyOK      = "OK"
)
