// Command readiness-report renders a project's readiness report into the
// configured blob store and prints the resulting record as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"readycore/internal/adapters/reports"
	"readycore/internal/blob"
	"readycore/internal/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("readiness-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	projectID := fs.String("project", "", "project id to report on (required)")
	formatsFlag := fs.String("formats", "json,csv", "comma separated report formats")
	requestedBy := fs.String("requested-by", "cli", "actor recorded on the report audit trail")
	timeout := fs.Duration("timeout", 30*time.Second, "maximum time to wait for the report to finish")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *projectID == "" {
		fmt.Fprintln(stderr, "readiness-report: -project is required")
		fs.Usage()
		return 2
	}

	var formats []reports.ReportFormat
	for _, raw := range strings.Split(*formatsFlag, ",") {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			formats = append(formats, reports.ReportFormat(raw))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		fmt.Fprintf(stderr, "readiness-report: open store: %v\n", err)
		return 1
	}
	blobStore, err := blob.Open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "readiness-report: open blob store: %v\n", err)
		return 1
	}
	svc := core.NewService(store, core.WithBlobStore(blobStore))

	worker := reports.NewWorker(svc, blobStore, nil)
	worker.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = worker.Stop(stopCtx)
	}()

	record, err := worker.EnqueueReport(ctx, reports.ReportInput{
		ProjectID:   *projectID,
		Formats:     formats,
		RequestedBy: *requestedBy,
	})
	if err != nil {
		fmt.Fprintf(stderr, "readiness-report: %v\n", err)
		return 1
	}

	final, err := waitForReport(ctx, worker, record.ID)
	if err != nil {
		fmt.Fprintf(stderr, "readiness-report: %v\n", err)
		return 1
	}
	if final.Status == reports.ReportStatusFailed {
		fmt.Fprintf(stderr, "readiness-report: report failed: %s\n", final.Error)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(final); err != nil {
		fmt.Fprintf(stderr, "readiness-report: encode record: %v\n", err)
		return 1
	}
	return 0
}

func waitForReport(ctx context.Context, worker *reports.Worker, id string) (reports.ReportRecord, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		record, ok := worker.GetReport(id)
		if !ok {
			return reports.ReportRecord{}, fmt.Errorf("report %s disappeared", id)
		}
		if record.Status == reports.ReportStatusSucceeded || record.Status == reports.ReportStatusFailed {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return reports.ReportRecord{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
