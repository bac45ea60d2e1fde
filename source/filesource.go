package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/srelabs/trace-engine/trace"
)

// FileSource reads one JSON-encoded trace per file from a directory
// (spec §4.1: "local file" variant). Each file is named
// "<trace_id>.json" and decodes to fileTrace below; both unix and ISO
// timestamp fields are normalized on load, preferring unix when both are
// present (spec §4.1: "An adapter must normalize both unix and ISO
// timestamps on output").
type FileSource struct {
	Dir string
}

// NewFileSource builds a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

type fileSpan struct {
	SpanID       string             `json:"span_id"`
	ParentSpanID string             `json:"parent_span_id"`
	Name         string             `json:"name"`
	StartUnix    *float64           `json:"start_unix"`
	EndUnix      *float64           `json:"end_unix"`
	StartISO     string             `json:"start_iso"`
	EndISO       string             `json:"end_iso"`
	Labels       map[string]string  `json:"labels"`
}

type fileTrace struct {
	TraceID    string     `json:"trace_id"`
	Project    string     `json:"project"`
	DurationMS float64    `json:"duration_ms"`
	Spans      []fileSpan `json:"spans"`
}

// FetchOne implements TraceSource.
func (f *FileSource) FetchOne(ctx context.Context, project, traceID string, _ Credentials) (trace.Trace, error) {
	if err := ctx.Err(); err != nil {
		return trace.Trace{}, err
	}
	path := filepath.Join(f.Dir, traceID+".json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return trace.Trace{}, &Error{Failure: FailureNotFound, TraceID: traceID, Err: err}
	}
	if err != nil {
		return trace.Trace{}, &Error{Failure: FailureTransient, TraceID: traceID, Err: err}
	}
	var ft fileTrace
	if err := json.Unmarshal(raw, &ft); err != nil {
		return trace.Trace{}, &Error{Failure: FailureMalformed, TraceID: traceID, Err: err}
	}
	if project != "" && ft.Project != "" && ft.Project != project {
		return trace.Trace{}, &Error{Failure: FailureNotFound, TraceID: traceID}
	}
	return normalizeFileTrace(ft), nil
}

// ListIDs implements TraceSource by listing "*.json" files in Dir,
// keeping only files whose raw JSON content contains filter as a literal
// substring when filter is non-empty.
func (f *FileSource) ListIDs(ctx context.Context, project string, filter Filter, limit int, creds Credentials) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, &Error{Failure: FailureTransient, Err: err}
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		if project != "" {
			tr, err := f.FetchOne(ctx, "", id, creds)
			if err != nil || (tr.Project != "" && tr.Project != project) {
				continue
			}
		}
		if filter != "" {
			raw, err := os.ReadFile(filepath.Join(f.Dir, e.Name()))
			if err != nil || !strings.Contains(string(raw), string(filter)) {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func normalizeFileTrace(ft fileTrace) trace.Trace {
	spans := make([]trace.Span, 0, len(ft.Spans))
	for _, fs := range ft.Spans {
		var sp trace.Span
		if fs.StartUnix != nil && fs.EndUnix != nil {
			sp = trace.NewSpan(fs.SpanID, fs.ParentSpanID, fs.Name, *fs.StartUnix, *fs.EndUnix, fs.Labels)
		} else {
			sp = trace.NewSpanFromISO(fs.SpanID, fs.ParentSpanID, fs.Name, fs.StartISO, fs.EndISO, fs.Labels)
		}
		spans = append(spans, sp)
	}
	return trace.New(ft.TraceID, ft.Project, ft.DurationMS, spans)
}

// writeFixtureFile is a small test helper used by source_test.go to
// seed a directory without importing encoding/json in the test file
// itself twice over.
func writeFixtureFile(dir, traceID string, ft fileTrace) error {
	ft.TraceID = traceID
	raw, err := json.MarshalIndent(ft, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, traceID+".json"), raw, 0o644)
}
