// Package reports renders project readiness reports asynchronously and stores
// the resulting artifacts in the blob store.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"readycore/internal/blob"
	"readycore/internal/core"
)

// ReportFormat identifies an artifact encoding.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ReportStatus describes the lifecycle stage of a report request.
type ReportStatus string

const (
	ReportStatusQueued    ReportStatus = "queued"
	ReportStatusRunning   ReportStatus = "running"
	ReportStatusSucceeded ReportStatus = "succeeded"
	ReportStatusFailed    ReportStatus = "failed"
)

// ReportArtifact captures one stored report artifact.
type ReportArtifact struct {
	ID          string         `json:"id"`
	Format      ReportFormat   `json:"format"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	Key         string         `json:"key"`
	URL         string         `json:"url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ReportRecord tracks a report request and its artifacts.
type ReportRecord struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	Formats     []ReportFormat   `json:"formats"`
	Status      ReportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ReportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r ReportRecord) copy() ReportRecord {
	out := r
	out.Formats = append([]ReportFormat(nil), r.Formats...)
	out.Artifacts = append([]ReportArtifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ReportInput represents an enqueue request for the worker.
type ReportInput struct {
	ProjectID   string
	Formats     []ReportFormat
	RequestedBy string
}

// AuditLogger records report audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for report runs.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	ProjectID  string         `json:"project_id"`
	Status     ReportStatus   `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// reportRow is one criterion line in the rendered report.
type reportRow struct {
	CriterionID   string     `json:"criterion_id"`
	Title         string     `json:"title"`
	Category      string     `json:"category,omitempty"`
	Severity      string     `json:"severity,omitempty"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	Owner         string     `json:"owner,omitempty"`
	DueDate       string     `json:"due_date,omitempty"`
	CaveatReason  string     `json:"caveat_reason,omitempty"`
	EvidenceCount int        `json:"evidence_count"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

// reportDocument is the JSON artifact payload.
type reportDocument struct {
	ProjectID   string      `json:"project_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Rows        []reportRow `json:"rows"`
}

var reportColumns = []string{"criterion_id", "title", "category", "severity", "status", "status_label", "owner", "due_date", "caveat_reason", "evidence_count", "last_activity"}

// Worker renders readiness reports asynchronously.
type Worker struct {
	svc   *core.Service
	store blob.Store
	audit AuditLogger

	queue chan reportTask
	mu    sync.RWMutex
	jobs  map[string]*ReportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type reportTask struct {
	id    string
	input ReportInput
}

type renderedArtifact struct {
	Artifact ReportArtifact
	Payload  []byte
}

// NewWorker constructs a report worker writing artifacts into store.
func NewWorker(svc *core.Service, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		svc:    svc,
		store:  store,
		audit:  audit,
		queue:  make(chan reportTask, 32),
		jobs:   make(map[string]*ReportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing report requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueReport schedules a report run and returns the queued record.
func (w *Worker) EnqueueReport(ctx context.Context, input ReportInput) (ReportRecord, error) {
	if strings.TrimSpace(input.ProjectID) == "" {
		return ReportRecord{}, fmt.Errorf("project id required")
	}
	if _, ok := w.svc.Store().GetProject(input.ProjectID); !ok {
		return ReportRecord{}, core.ErrNotFound{Entity: core.EntityProject, ID: input.ProjectID}
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ReportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ReportFormat, 0, len(formats))
	seen := make(map[ReportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return ReportRecord{}, fmt.Errorf("unsupported report format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ReportRecord{
		ID:          id,
		ProjectID:   input.ProjectID,
		Formats:     uniq,
		Status:      ReportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, id, ReportStatusQueued, nil)

	select {
	case w.queue <- reportTask{id: id, input: input}:
	default:
		return ReportRecord{}, fmt.Errorf("report queue full")
	}

	return queued, nil
}

// GetReport returns a snapshot of the report record.
func (w *Worker) GetReport(id string) (ReportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ReportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task reportTask) {
	w.updateStatus(task.id, ReportStatusRunning, "")

	doc := w.buildDocument(task.input.ProjectID)

	var formats []ReportFormat
	w.mu.RLock()
	if record, ok := w.jobs[task.id]; ok {
		formats = append(formats, record.Formats...)
	}
	w.mu.RUnlock()

	artifacts := make([]ReportArtifact, 0, len(formats))
	for _, format := range formats {
		rendered, err := w.materialize(format, doc)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		key := fmt.Sprintf("reports/%s/%s.%s", doc.ProjectID, task.id, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(rendered.Payload), blob.PutOptions{ContentType: rendered.Artifact.ContentType})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		rendered.Artifact.Key = key
		rendered.Artifact.SizeBytes = info.Size
		if url, presignErr := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); presignErr == nil {
			rendered.Artifact.URL = url
		}
		artifacts = append(artifacts, rendered.Artifact)
	}

	w.complete(task.id, artifacts)
}

func (w *Worker) buildDocument(projectID string) reportDocument {
	criteria := w.svc.Criteria(projectID)
	rows := make([]reportRow, 0, len(criteria))
	for _, c := range criteria {
		trail := w.svc.EvidenceTrail(c.ID)
		row := reportRow{
			CriterionID:   c.ID,
			Title:         c.Title,
			Category:      c.Category,
			Severity:      c.Severity,
			Status:        string(c.Status),
			StatusLabel:   c.Status.Label(),
			EvidenceCount: len(trail),
		}
		if c.Owner != nil {
			row.Owner = *c.Owner
		}
		if c.DueDate != nil {
			row.DueDate = c.DueDate.UTC().Format("2006-01-02")
		}
		if c.CaveatReason != nil {
			row.CaveatReason = *c.CaveatReason
		}
		if len(trail) > 0 {
			last := trail[0].RecordedAt
			row.LastActivity = &last
		}
		rows = append(rows, row)
	}
	return reportDocument{ProjectID: projectID, GeneratedAt: time.Now().UTC(), Rows: rows}
}

func (w *Worker) materialize(format ReportFormat, doc reportDocument) (renderedArtifact, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(doc)
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			Artifact: ReportArtifact{
				ID:          newID(),
				Format:      FormatJSON,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				Metadata:    map[string]any{"rows": len(doc.Rows)},
				CreatedAt:   time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(reportColumns); err != nil {
			return renderedArtifact{}, err
		}
		for _, row := range doc.Rows {
			lastActivity := ""
			if row.LastActivity != nil {
				lastActivity = row.LastActivity.UTC().Format(time.RFC3339)
			}
			record := []string{
				row.CriterionID,
				row.Title,
				row.Category,
				row.Severity,
				row.Status,
				row.StatusLabel,
				row.Owner,
				row.DueDate,
				row.CaveatReason,
				fmt.Sprintf("%d", row.EvidenceCount),
				lastActivity,
			}
			if err := writer.Write(record); err != nil {
				return renderedArtifact{}, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return renderedArtifact{}, err
		}
		payload := buf.Bytes()
		return renderedArtifact{
			Artifact: ReportArtifact{
				ID:          newID(),
				Format:      FormatCSV,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				Metadata:    map[string]any{"rows": len(doc.Rows)},
				CreatedAt:   time.Now().UTC(),
			},
			Payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported report format %s", format)
	}
}

func (w *Worker) updateStatus(id string, status ReportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, nil)
}

func (w *Worker) complete(id string, artifacts []ReportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ReportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ReportStatusSucceeded, map[string]any{"artifacts": len(artifacts)})
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ReportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ReportStatusFailed, map[string]any{"error": reason})
}

func (w *Worker) recordAudit(ctx context.Context, id string, status ReportStatus, metadata map[string]any) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor := ""
	projectID := ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		projectID = record.ProjectID
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "readiness_report",
		Actor:      actor,
		ProjectID:  projectID,
		Status:     status,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	})
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("reports id: %w", err))
	}
	return hex.EncodeToString(buf)
}
