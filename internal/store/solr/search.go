package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MatchAll is the query used when Query.Q is empty.
const MatchAll = "*:*"

// Query is a select request against one collection.
type Query struct {
	Q       string
	Filters []string
	Facets  []string
	Sort    []SortClause
	Start   int
	Rows    int
}

// SortClause orders results by one field. Order is "asc" or "desc".
type SortClause struct {
	Field string `json:"item"`
	Order string `json:"order"`
}

// FacetCount is one bucket of a field facet.
type FacetCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// SearchResult is the decoded select response.
type SearchResult struct {
	NumFound int64                   `json:"num_found"`
	Start    int64                   `json:"start"`
	MaxScore *float64                `json:"max_score,omitempty"`
	Docs     []map[string]any        `json:"docs"`
	Facets   map[string][]FacetCount `json:"facets,omitempty"`
}

// Params encodes q as select parameters.
func (q Query) Params() (url.Values, error) {
	p := url.Values{"wt": {"json"}}

	text := strings.TrimSpace(q.Q)
	if text == "" {
		text = MatchAll
	}
	p.Set("q", text)

	for _, fq := range q.Filters {
		if fq = strings.TrimSpace(fq); fq != "" {
			p.Add("fq", fq)
		}
	}

	if len(q.Facets) > 0 {
		p.Set("facet", "true")
		p.Set("facet.mincount", "1")
		p.Set("facet.sort", "count")
		for _, f := range q.Facets {
			p.Add("facet.field", f)
		}
	}

	if len(q.Sort) > 0 {
		clauses := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			order := strings.ToLower(strings.TrimSpace(s.Order))
			if order == "" {
				order = "asc"
			}
			if order != "asc" && order != "desc" {
				return nil, fmt.Errorf("sort %q: order must be asc or desc, got %q", s.Field, s.Order)
			}
			if strings.TrimSpace(s.Field) == "" {
				return nil, fmt.Errorf("sort clause has no field")
			}
			clauses = append(clauses, s.Field+" "+order)
		}
		p.Set("sort", strings.Join(clauses, ","))
	}

	if q.Start < 0 || q.Rows < 0 {
		return nil, fmt.Errorf("start and rows must not be negative")
	}
	if q.Start > 0 {
		p.Set("start", strconv.Itoa(q.Start))
	}
	if q.Rows > 0 {
		p.Set("rows", strconv.Itoa(q.Rows))
	}

	return p, nil
}

// Search runs q against collection's select handler.
func (c *Client) Search(ctx context.Context, collection string, q Query) (*SearchResult, error) {
	params, err := q.Params()
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, collectionPath(collection, "select"), params, nil)
	if err != nil {
		return nil, err
	}

	var raw selectResponse
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}
	return raw.result()
}

type selectResponse struct {
	Response struct {
		NumFound json.Number      `json:"numFound"`
		Start    json.Number      `json:"start"`
		MaxScore *json.Number     `json:"maxScore"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
	FacetCounts struct {
		FacetFields map[string][]any `json:"facet_fields"`
	} `json:"facet_counts"`
}

func (r selectResponse) result() (*SearchResult, error) {
	res := &SearchResult{Docs: r.Response.Docs}
	if res.Docs == nil {
		res.Docs = []map[string]any{}
	}

	var err error
	if res.NumFound, err = int64Of(r.Response.NumFound); err != nil {
		return nil, fmt.Errorf("numFound: %w", err)
	}
	if res.Start, err = int64Of(r.Response.Start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if r.Response.MaxScore != nil {
		f, err := r.Response.MaxScore.Float64()
		if err != nil {
			return nil, fmt.Errorf("maxScore: %w", err)
		}
		res.MaxScore = &f
	}

	// Solr returns facet buckets as a flat [value, count, value, count] list.
	if len(r.FacetCounts.FacetFields) > 0 {
		res.Facets = make(map[string][]FacetCount, len(r.FacetCounts.FacetFields))
		for field, flat := range r.FacetCounts.FacetFields {
			counts := make([]FacetCount, 0, len(flat)/2)
			for i := 0; i+1 < len(flat); i += 2 {
				n, _ := flat[i+1].(json.Number)
				count, err := n.Int64()
				if err != nil {
					return nil, fmt.Errorf("facet %s: %w", field, err)
				}
				counts = append(counts, FacetCount{Value: fmt.Sprint(flat[i]), Count: count})
			}
			res.Facets[field] = counts
		}
	}

	return res, nil
}

func int64Of(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	return n.Int64()
}
