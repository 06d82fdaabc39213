// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package storage

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/tuituidan/image-host/internal/domain/contracts"
	"github.com/tuituidan/image-host/internal/infrastructure/config"
	"github.com/tuituidan/image-host/pkg/constants"
)

// NewSearchRepository builds the repository for the configured engine
func NewSearchRepository(cfg config.SearchConfig, logger *slog.Logger) (contracts.SearchRepository, error) {
	switch cfg.Engine {
	case constants.EngineOpenSearch:
		client, err := opensearch.NewClient(opensearch.Config{
			Addresses: addresses(cfg.URL),
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
		}
		return NewOpenSearchRepository(client, logger), nil

	case constants.EngineElasticsearch:
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: addresses(cfg.URL),
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: transport(cfg),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
		}
		return NewElasticsearchRepository(client, logger), nil

	case constants.EngineBleve:
		return NewBleveRepository(cfg.BlevePath, logger)

	default:
		return nil, fmt.Errorf("unknown search engine: %q", cfg.Engine)
	}
}

// addresses accepts a comma separated list of node URLs
func addresses(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func transport(cfg config.SearchConfig) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Timeout > 0 {
		t.ResponseHeaderTimeout = cfg.Timeout
	}
	return t
}
