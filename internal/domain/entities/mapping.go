// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package entities

// FileDocMapping is the OpenSearch/Elasticsearch index definition for FileDoc
var FileDocMapping = []byte(`{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "name":         {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 256}}},
      "tags":         {"type": "text"},
      "path":         {"type": "keyword"},
      "md5":          {"type": "keyword"},
      "content_type": {"type": "keyword"},
      "size":         {"type": "long"},
      "ext":          {"type": "keyword"},
      "create_date":  {"type": "date"}
    }
  }
}`)
