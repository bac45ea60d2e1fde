package spanalgebra

import (
	"strconv"
	"strings"

	"github.com/srelabs/trace-engine/trace"
)

// ErrorRecord describes one span flagged as an error (spec §4.4.2).
type ErrorRecord struct {
	SpanID       string
	Name         string
	ErrorType    string
	StatusCode   *int
	ErrorMessage string
}

var genericErrorKeywords = []string{"error", "exception", "fault", "failure"}
var falsyValues = map[string]bool{"false": true, "0": true, "none": true, "ok": true}

// Errors classifies spans as errors per the three rules in spec §4.4.2.
// The HTTP-status rule is deliberately narrow (only numeric >= 400) so a
// generic "status"/"code" label with an innocuous value is never
// mistaken for an error (spec's own callout: a "status":"200" label must
// NOT be flagged).
func Errors(t trace.Trace) []ErrorRecord {
	var out []ErrorRecord
	for _, s := range t.Spans {
		if rec, ok := classifySpanError(s); ok {
			out = append(out, rec)
		}
	}
	return out
}

func classifySpanError(s trace.Span) (ErrorRecord, bool) {
	if rec, ok := grpcStatusError(s); ok {
		return rec, true
	}
	if rec, ok := httpStatusError(s); ok {
		return rec, true
	}
	if rec, ok := genericError(s); ok {
		return rec, true
	}
	return ErrorRecord{}, false
}

// grpcStatusError implements: "a label with key containing grpc and
// status whose value is non-empty and not in {ok, 0}".
func grpcStatusError(s trace.Span) (ErrorRecord, bool) {
	for k, v := range s.Labels {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "grpc") || !strings.Contains(lk, "status") {
			continue
		}
		if v == "" {
			continue
		}
		lv := strings.ToLower(v)
		if lv == "ok" || lv == "0" {
			continue
		}
		return ErrorRecord{SpanID: s.SpanID, Name: s.Name, ErrorType: "grpc_error", ErrorMessage: v}, true
	}
	return ErrorRecord{}, false
}

// httpStatusError implements: "a label with key containing
// /http/status_code or http.status_code whose integer value >= 400".
func httpStatusError(s trace.Span) (ErrorRecord, bool) {
	for k, v := range s.Labels {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "/http/status_code") && !strings.Contains(lk, "http.status_code") {
			continue
		}
		code, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || code < 400 {
			continue
		}
		c := code
		return ErrorRecord{SpanID: s.SpanID, Name: s.Name, ErrorType: "http_error", StatusCode: &c}, true
	}
	return ErrorRecord{}, false
}

// genericError implements: "a label whose key contains one of {error,
// exception, fault, failure} AND whose value is non-empty AND not in
// {false, 0, none, ok}". It deliberately does NOT match on bare
// "status"/"code" keys, which are handled (narrowly) by the HTTP rule
// above — this is the guard spec §4.4.2 calls out against over-broad
// substring matches.
func genericError(s trace.Span) (ErrorRecord, bool) {
	for k, v := range s.Labels {
		if v == "" {
			continue
		}
		lk := strings.ToLower(k)
		matched := false
		for _, kw := range genericErrorKeywords {
			if strings.Contains(lk, kw) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if falsyValues[strings.ToLower(v)] {
			continue
		}
		return ErrorRecord{SpanID: s.SpanID, Name: s.Name, ErrorType: "generic_error", ErrorMessage: v}, true
	}
	return ErrorRecord{}, false
}
