// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package contracts

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned when a document id does not exist in the index
var ErrDocumentNotFound = errors.New("document not found")

// StatusError carries a non-2xx response from a remote engine
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Status)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
