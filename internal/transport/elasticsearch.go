// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ESReader reads recorded messages back out of an Elasticsearch index,
// paginated by a configurable page size, using plain `from`/`size`
// pagination rather than scroll or search_after (the query string is
// caller-supplied and assumed stable across pages).
type ESReader struct {
	client   *http.Client
	ctx      context.Context
	baseURL  string
	query    string
	pageSize int

	page     []esHit
	pageBase int64
	cursor   int
	from     int
	total    int
	fetched  bool
	done     bool
}

type esHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// NewESReader returns a reader over baseURL's `_search` endpoint,
// re-issuing query with `from`/`size` to page through results pageSize
// at a time. pageSize must be >= 1.
func NewESReader(ctx context.Context, client *http.Client, baseURL, query string, pageSize int) (*ESReader, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("transport: elasticsearch page size must be >= 1, got %d", pageSize)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ESReader{
		client:   client,
		ctx:      ctx,
		baseURL:  strings.TrimRight(baseURL, "/"),
		query:    query,
		pageSize: pageSize,
	}, nil
}

func (r *ESReader) fetchPage() error {
	body := fmt.Sprintf(`{"query":%s,"from":%d,"size":%d}`, r.query, r.from, r.pageSize)
	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, r.baseURL+"/_search", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: building elasticsearch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: elasticsearch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transport: elasticsearch returned status %d", resp.StatusCode)
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("transport: invalid elasticsearch reply: %w", err)
	}

	r.page = parsed.Hits.Hits
	r.pageBase = int64(r.from)
	r.cursor = 0
	r.total = parsed.Hits.Total.Value
	r.from += len(parsed.Hits.Hits)
	r.fetched = true
	if len(parsed.Hits.Hits) == 0 || r.from >= r.total {
		r.done = len(parsed.Hits.Hits) == 0
	}
	return nil
}

// Read returns the next hit's `_source` document as a raw JSON line,
// fetching additional pages from Elasticsearch as needed.
func (r *ESReader) Read() ([]byte, int64, error) {
	for r.cursor >= len(r.page) {
		if r.fetched && (r.done || (r.total > 0 && r.from >= r.total)) {
			return nil, int64(r.from), io.EOF
		}
		if err := r.fetchPage(); err != nil {
			return nil, int64(r.from), err
		}
		if len(r.page) == 0 {
			return nil, int64(r.from), io.EOF
		}
	}
	hit := r.page[r.cursor]
	loc := r.pageBase + int64(r.cursor)
	r.cursor++
	return []byte(hit.Source), loc, nil
}

// LocFormat renders loc as a result index.
func (r *ESReader) LocFormat(loc int64) string {
	return fmt.Sprintf("entry %d", loc)
}
