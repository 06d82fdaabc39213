// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

// FileCache maps content md5 to the object path already holding those bytes
type FileCache interface {
	Get(md5 string) (string, bool)
	Put(md5, path string)
	Remove(md5 string)
	// RemoveIf forgets md5 only while it still maps to path
	RemoveIf(md5, path string) bool
	// Replace swaps the whole content for entries
	Replace(entries map[string]string)
	Len() int
}
