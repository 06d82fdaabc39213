// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package resultmapper turns raw search engine hits into typed pages,
// replacing highlighted fields with their first highlight fragment.
package resultmapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/domain/entities"
	"github.com/tuituidan/image-host/pkg/constants"
)

// idField receives the engine document id when the source does not carry one
const idField = "id"

// MapResults decodes every hit into T. The page carries result.Total even
// when there are no hits.
func MapResults[T any](result *contracts.SearchResult, pageIndex, pageSize int) (entities.Page[T], error) {
	page := entities.Page[T]{
		Content:   make([]T, 0),
		PageIndex: pageIndex,
		PageSize:  pageSize,
	}
	if result == nil {
		return page, nil
	}
	page.Total = result.Total

	if len(result.Hits) == 0 {
		return page, nil
	}

	page.Content = make([]T, 0, len(result.Hits))
	for _, hit := range result.Hits {
		item, err := MapHit[T](hit)
		if err != nil {
			return page, err
		}
		page.Content = append(page.Content, item)
	}
	return page, nil
}

// MapHit decodes one hit, overwriting each highlighted field with its first fragment
func MapHit[T any](hit contracts.SearchHit) (T, error) {
	var out T

	source := make(map[string]any)
	if len(hit.Source) > 0 {
		dec := json.NewDecoder(bytes.NewReader(hit.Source))
		dec.UseNumber()
		if err := dec.Decode(&source); err != nil {
			return out, fmt.Errorf("%s: hit %s: %w", constants.ErrTagHighlight, hit.ID, err)
		}
	}
	// a JSON null source decodes to a nil map
	if source == nil {
		source = make(map[string]any)
	}

	if _, ok := source[idField]; !ok && hit.ID != "" {
		source[idField] = hit.ID
	}

	for field, fragments := range hit.Highlight {
		if len(fragments) == 0 {
			continue
		}
		if err := setPath(source, field, fragments[0]); err != nil {
			return out, fmt.Errorf("%s: hit %s: %w", constants.ErrTagHighlight, hit.ID, err)
		}
	}

	raw, err := json.Marshal(source)
	if err != nil {
		return out, fmt.Errorf("%s: hit %s: %w", constants.ErrTagHighlight, hit.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%s: hit %s: %w", constants.ErrTagHighlight, hit.ID, err)
	}
	return out, nil
}

// setPath assigns value at a dotted path, creating intermediate objects as needed
func setPath(source map[string]any, field string, value string) error {
	parts := strings.Split(field, ".")
	current := source
	for _, part := range parts[:len(parts)-1] {
		next, exists := current[part]
		if !exists || next == nil {
			child := make(map[string]any)
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q is not an object", part)
		}
		current = child
	}
	current[parts[len(parts)-1]] = value
	return nil
}
