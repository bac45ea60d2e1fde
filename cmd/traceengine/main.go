package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/srelabs/trace-engine/orchestrator"
	"github.com/srelabs/trace-engine/source"
)

var (
	fixturePath string
	traceID     string
	baselineID  string
	project     string
	mode        string
)

func main() {
	flag.StringVar(&fixturePath, "fixture", "", "directory of <trace_id>.json files (source.FileSource)")
	flag.StringVar(&traceID, "trace", "", "trace id to analyze")
	flag.StringVar(&baselineID, "baseline", "", "baseline trace id (compare mode)")
	flag.StringVar(&project, "project", "", "project id")
	flag.StringVar(&mode, "mode", "analyze", "analyze | patterns | compare")
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "traceengine:", err)
		os.Exit(1)
	}
}

func run() error {
	if fixturePath == "" {
		return fmt.Errorf("-fixture is required")
	}
	src := source.NewFileSource(fixturePath)
	orch := orchestrator.New(src)
	ctx := context.Background()
	creds := source.Credentials{}

	switch mode {
	case "analyze":
		return printJSON(orch.AnalyzeTrace(ctx, project, traceID, creds, nil))
	case "patterns":
		return printJSON(orch.RunSREPatterns(ctx, project, traceID, creds))
	case "compare":
		if baselineID == "" {
			return fmt.Errorf("-baseline is required in compare mode")
		}
		return printJSON(orch.Compare(ctx, project, baselineID, traceID, creds, true))
	default:
		return fmt.Errorf("unknown -mode %q", mode)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
