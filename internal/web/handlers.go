package web

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/docingest/internal/format"
	"github.com/JonMunkholm/docingest/internal/ingest"
	"github.com/JonMunkholm/docingest/internal/store/solr"
)

// multipartOverhead bounds the multipart framing around an uploaded file.
const multipartOverhead = 1 << 20

// handleIngest loads the request body, or the multipart "file" part, into
// the collection. The format comes from ?format=, the Content-Type or the
// file name, in that order.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	if limit := s.cfg.Ingest.MaxInputSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	in, err := readUpload(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	f, err := format.Detect(in.format, in.contentType, in.filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Index(r.Context(), collection, f, in.body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, res)
}

// upload is the document input of an ingest request.
type upload struct {
	body        io.Reader
	format      string
	contentType string
	filename    string
}

// readUpload locates the input. A multipart body is streamed: fields
// before the "file" part are read, the file itself is not buffered.
func readUpload(r *http.Request) (*upload, error) {
	in := &upload{format: r.URL.Query().Get("format")}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, ingest.ErrNoInput
		}
		in.body = r.Body
		in.contentType = r.Header.Get("Content-Type")
		in.filename = r.URL.Query().Get("filename")
		return in, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrNoInput, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no %q part", ingest.ErrNoInput, "file")
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read multipart: %v", ingest.ErrNoInput, err)
		}

		switch part.FormName() {
		case "file":
			in.body = part
			in.contentType = part.Header.Get("Content-Type")
			in.filename = part.FileName()
			return in, nil
		case "format":
			v, _ := io.ReadAll(io.LimitReader(part, 64))
			if in.format == "" {
				in.format = strings.TrimSpace(string(v))
			}
		}
		part.Close()
	}
}

// handleSearch queries a collection.
//
// Parameters: q, fq (repeatable), facet (repeatable or comma-separated),
// sort as field:order (repeatable or comma-separated), start, rows.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Search(r.Context(), chi.URLParam(r, "collection"), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, res)
}

func parseQuery(v url.Values) (solr.Query, error) {
	q := solr.Query{
		Q:       v.Get("q"),
		Filters: v["fq"],
		Facets:  splitValues(v["facet"]),
	}

	for _, clause := range splitValues(v["sort"]) {
		field, order, _ := strings.Cut(clause, ":")
		q.Sort = append(q.Sort, solr.SortClause{Field: strings.TrimSpace(field), Order: strings.TrimSpace(order)})
	}

	var err error
	if q.Start, err = intParam(v, "start"); err != nil {
		return q, err
	}
	if q.Rows, err = intParam(v, "rows"); err != nil {
		return q, err
	}
	return q, nil
}

// intParam parses an optional non-negative integer parameter.
func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ingest.ErrInvalidSearch, name, raw)
	}
	return n, nil
}

// splitValues flattens comma-separated values and drops empties.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// handleCollections lists the permitted collections.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.Collections(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string][]string{"collections": names})
}

// handleStatus reports the backend and ingest slot usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.service.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}
