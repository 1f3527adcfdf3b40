package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"readycore/internal/blob"
)

// AddNoteEvidence appends a plain note to the criterion's audit trail.
func (s *Service) AddNoteEvidence(ctx context.Context, criterionID, narrative, author string) (Evidence, Result, error) {
	started := time.Now()
	if strings.TrimSpace(narrative) == "" {
		err := ValidationError{Field: "narrative", Reason: "required"}
		s.observe(ctx, "add_note_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	created, res, err := s.insertEvidence(ctx, Evidence{
		CriterionID: criterionID,
		Kind:        EvidenceNote,
		Narrative:   narrative,
		Author:      author,
		RecordedAt:  s.nowFn(),
	})
	s.observe(ctx, "add_note_evidence", started, err)
	return created, res, err
}

// AddLinkEvidence appends a link entry plus the system cover note narrating
// the action, yielding two audit rows per user action.
func (s *Service) AddLinkEvidence(ctx context.Context, criterionID, narrative, url, author string) (Evidence, Result, error) {
	started := time.Now()
	if strings.TrimSpace(narrative) == "" {
		err := ValidationError{Field: "narrative", Reason: "required"}
		s.observe(ctx, "add_link_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	// Arbitrary non-empty text is accepted; references need not be URLs.
	if strings.TrimSpace(url) == "" {
		err := ValidationError{Field: "url", Reason: "required"}
		s.observe(ctx, "add_link_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	created, res, err := s.insertEvidence(ctx, Evidence{
		CriterionID: criterionID,
		Kind:        EvidenceLink,
		Narrative:   narrative,
		URL:         &url,
		Author:      author,
		RecordedAt:  s.nowFn(),
	})
	if err != nil {
		s.observe(ctx, "add_link_evidence", started, err)
		return Evidence{}, res, err
	}
	if _, _, noteErr := s.appendSystemNote(ctx, criterionID, fmt.Sprintf("Link added: %s", url), author); noteErr != nil {
		s.observe(ctx, "add_link_evidence", started, noteErr)
		return created, res, fmt.Errorf("link recorded but cover note failed: %w", noteErr)
	}
	s.observe(ctx, "add_link_evidence", started, nil)
	return created, res, nil
}

// AddFileEvidence uploads the blob under a key namespaced by criterion id and
// a timestamp-qualified filename, then appends the file entry and its cover
// note. An upload failure aborts the operation before any row is written. A
// row-insert failure after a successful upload leaves an orphaned blob.
func (s *Service) AddFileEvidence(ctx context.Context, criterionID, narrative, filename, contentType string, content io.Reader, author string) (Evidence, Result, error) {
	started := time.Now()
	if strings.TrimSpace(narrative) == "" {
		err := ValidationError{Field: "narrative", Reason: "required"}
		s.observe(ctx, "add_file_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	if strings.TrimSpace(filename) == "" {
		err := ValidationError{Field: "filename", Reason: "required"}
		s.observe(ctx, "add_file_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	if content == nil {
		err := ValidationError{Field: "file", Reason: "required"}
		s.observe(ctx, "add_file_evidence", started, err)
		return Evidence{}, Result{}, err
	}
	key := fmt.Sprintf("criteria/%s/%d-%s", criterionID, s.nowFn().UnixNano(), filename)
	info, err := s.blobs.Put(ctx, key, content, blob.PutOptions{ContentType: contentType})
	if err != nil {
		serr := StorageError{Op: "put", Key: key, Err: err}
		s.observe(ctx, "add_file_evidence", started, serr)
		return Evidence{}, Result{}, serr
	}
	row := Evidence{
		CriterionID: criterionID,
		Kind:        EvidenceFile,
		Narrative:   narrative,
		FilePath:    &key,
		FileSize:    &info.Size,
		Author:      author,
		RecordedAt:  s.nowFn(),
	}
	if contentType != "" {
		row.FileMime = &contentType
	}
	if url, presignErr := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{}); presignErr == nil && url != "" {
		row.FileURL = &url
	}
	created, res, err := s.insertEvidence(ctx, row)
	if err != nil {
		s.observe(ctx, "add_file_evidence", started, err)
		return Evidence{}, res, err
	}
	if _, _, noteErr := s.appendSystemNote(ctx, criterionID, fmt.Sprintf("File uploaded: %s", filename), author); noteErr != nil {
		s.observe(ctx, "add_file_evidence", started, noteErr)
		return created, res, fmt.Errorf("file recorded but cover note failed: %w", noteErr)
	}
	s.observe(ctx, "add_file_evidence", started, nil)
	return created, res, nil
}

// DeleteEvidence removes a link or file entry and appends the removal note.
// Note entries are permanent and are rejected before reaching the store. For
// file entries the stored object is deleted best-effort first; a blob failure
// never blocks the row deletion.
func (s *Service) DeleteEvidence(ctx context.Context, evidenceID, author string) (Result, error) {
	started := time.Now()
	target, ok := s.store.GetEvidence(evidenceID)
	if !ok {
		err := ErrNotFound{Entity: EntityEvidence, ID: evidenceID}
		s.observe(ctx, "delete_evidence", started, err)
		return Result{}, err
	}
	if target.Kind == EvidenceNote {
		err := ValidationError{Field: "kind", Reason: "notes cannot be deleted"}
		s.observe(ctx, "delete_evidence", started, err)
		return Result{}, err
	}
	if target.Kind == EvidenceFile && target.FilePath != nil {
		// advisory cleanup only
		_, _ = s.blobs.Delete(ctx, *target.FilePath)
	}
	res, err := s.runTx(ctx, "delete_evidence", func(tx Transaction) error {
		return tx.DeleteEvidence(evidenceID)
	})
	if err != nil {
		s.observe(ctx, "delete_evidence", started, err)
		return res, err
	}
	if _, _, noteErr := s.appendSystemNote(ctx, target.CriterionID, removalNote(target), author); noteErr != nil {
		s.observe(ctx, "delete_evidence", started, noteErr)
		return res, fmt.Errorf("evidence removed but audit note failed: %w", noteErr)
	}
	s.observe(ctx, "delete_evidence", started, nil)
	return res, nil
}

func removalNote(target Evidence) string {
	switch target.Kind {
	case EvidenceFile:
		return fmt.Sprintf("File removed: %s", storedFilename(target))
	default:
		ref := ""
		if target.URL != nil {
			ref = *target.URL
		}
		return fmt.Sprintf("Link removed: %s", ref)
	}
}

// storedFilename recovers the original filename from the timestamp-qualified
// storage key.
func storedFilename(target Evidence) string {
	if target.FilePath == nil {
		return ""
	}
	base := path.Base(*target.FilePath)
	if i := strings.Index(base, "-"); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return base
}

func (s *Service) insertEvidence(ctx context.Context, row Evidence) (Evidence, Result, error) {
	var created Evidence
	res, err := s.runTx(ctx, "insert_evidence", func(tx Transaction) error {
		if _, ok := tx.FindCriterion(row.CriterionID); !ok {
			return ErrNotFound{Entity: EntityCriterion, ID: row.CriterionID}
		}
		var err error
		created, err = tx.CreateEvidence(row)
		return err
	})
	return created, res, err
}
