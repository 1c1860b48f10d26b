package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/docingest/internal/ingest"
)

// =============================================================================
// Helpers
// =============================================================================

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// =============================================================================
// flatten
// =============================================================================

func TestFlatten(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		input string
		args  []string
		want  string
	}{
		{
			name:  "json nested",
			file:  "books.json",
			input: `[{"id":"1","Author":{"First Name":"Frank"},"tags":["a","b"]},{"id":"2","gone":null}]`,
			want:  `{"id":"1","author_first_name":"Frank","tags":["a","b"]}` + "\n" + `{"id":"2"}` + "\n",
		},
		{
			name:  "csv",
			file:  "books.csv",
			input: "Product ID,Title\nA1,Go\n",
			want:  `{"product_id":"A1","title":"Go"}` + "\n",
		},
		{
			name:  "explicit format overrides extension",
			file:  "data.txt",
			input: `<docs><doc><id>x</id></doc></docs>`,
			args:  []string{"--format", "xml"},
			want:  `{"id":"x"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.input)
			args := append([]string{"flatten"}, tt.args...)
			out, err := execute(t, "", append(args, path)...)
			if err != nil {
				t.Fatalf("flatten: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestFlatten_Stdin(t *testing.T) {
	out, err := execute(t, `[{"id":"s"}]`, "flatten", "--format", "json", "-")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if out != `{"id":"s"}`+"\n" {
		t.Errorf("output = %q", out)
	}
}

func TestFlatten_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		input   string
		args    []string
		wantErr string
	}{
		{"unknown extension", "notes.txt", "hello", nil, "unknown input format"},
		{"malformed json", "bad.json", `[{"id":`, nil, "parse json"},
		{"too large", "big.json", `[{"id":"1"},{"id":"2"}]`, []string{"--max-bytes", "5"}, "exceeds maximum size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.input)
			args := append([]string{"flatten"}, tt.args...)
			_, err := execute(t, "", append(args, path)...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFlatten_MissingFile(t *testing.T) {
	_, err := execute(t, "", "flatten", filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// =============================================================================
// load
// =============================================================================

// fakeSolr records update request bodies.
type fakeSolr struct {
	mu      sync.Mutex
	updates []string
}

func (f *fakeSolr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/update") {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		f.mu.Lock()
		f.updates = append(f.updates, buf.String())
		f.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	if strings.HasSuffix(r.URL.Path, "/admin/collections") {
		_, _ = w.Write([]byte(`{"responseHeader":{"status":0},"collections":["news","books","archive"]}`))
		return
	}
	_, _ = w.Write([]byte(`{"responseHeader":{"status":0}}`))
}

func setSolrEnv(t *testing.T, url string) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "solr")
	t.Setenv("SOLR_URL", url)
	t.Setenv("SOLR_RETRY_MAX", "0")
	t.Setenv("ALLOWED_COLLECTIONS", "")
}

func TestLoad_Solr(t *testing.T) {
	fake := &fakeSolr{}
	ts := httptest.NewServer(fake)
	defer ts.Close()
	setSolrEnv(t, ts.URL)

	path := writeFile(t, "books.json", `[{"id":"1"},{"id":"2"},{"id":"3"}]`)
	out, err := execute(t, "", "load", "--collection", "books", "--batch-size", "2", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var res ingest.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result %q: %v", out, err)
	}
	if res.Indexed != 3 || res.Batches != 2 || res.Collection != "books" {
		t.Errorf("result = %+v", res)
	}

	// Two batches and one commit.
	if len(fake.updates) != 3 {
		t.Fatalf("update requests = %d, want 3", len(fake.updates))
	}
	if !strings.Contains(fake.updates[2], `"commit"`) {
		t.Errorf("last update should commit: %s", fake.updates[2])
	}
}

func TestLoad_RequiresCollection(t *testing.T) {
	_, err := execute(t, "", "load", "x.json")
	if err == nil || !strings.Contains(err.Error(), "collection") {
		t.Errorf("err = %v, want required flag error", err)
	}
}

func TestLoad_MalformedInput(t *testing.T) {
	fake := &fakeSolr{}
	ts := httptest.NewServer(fake)
	defer ts.Close()
	setSolrEnv(t, ts.URL)

	path := writeFile(t, "bad.csv", "a,b\n1\n")
	_, err := execute(t, "", "load", "-c", "books", path)
	if err == nil || !strings.Contains(err.Error(), "PARSE002") {
		t.Fatalf("err = %v, want PARSE002", err)
	}
	if len(fake.updates) != 0 {
		t.Errorf("malformed input sent %d updates, want 0", len(fake.updates))
	}
}

// =============================================================================
// collections
// =============================================================================

func TestCollections(t *testing.T) {
	ts := httptest.NewServer(&fakeSolr{})
	defer ts.Close()
	setSolrEnv(t, ts.URL)
	t.Setenv("ALLOWED_COLLECTIONS", "books,news")

	out, err := execute(t, "", "collections")
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if want := "books\nnews\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "mapped error keeps detail and adds guidance",
			err:  ingest.ErrTooManyIngests,
			want: ingest.ErrTooManyIngests.Error() + ": The server is busy with other ingests (Code: ING001). Wait a moment and try again",
		},
		{
			name: "unmapped error is unchanged",
			err:  errors.New("something odd"),
			want: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(tt.err); got != tt.want {
				t.Errorf("describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
