package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"vansales/internal/amqp"
	"vansales/internal/core"
	applog "vansales/internal/log"
	"vansales/internal/spreadsheet"
	"vansales/internal/store"
)

// MaxImportBytes bounds an uploaded workbook.
const MaxImportBytes = 10 << 20

var (
	ErrImportExpired   = errors.New("import not found or expired")
	ErrImportTooLarge  = errors.New("spreadsheet too large")
	ErrImportDuplicate = errors.New("spreadsheet repeats a record id")
)

// StagedImport is an uploaded workbook waiting for confirmation. The raw
// file is kept rather than decoded records so that numbers survive any
// cache encoding unchanged.
type StagedImport struct {
	Token     string    `json:"token"`
	Kind      core.Kind `json:"kind"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// ImportPreview describes a staged import to the user before commit.
type ImportPreview struct {
	Token     string    `json:"token"`
	Kind      core.Kind `json:"kind"`
	Rows      int       `json:"rows"`
	Columns   []string  `json:"columns"`
	Replaces  int       `json:"replaces"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ImportResult reports a committed import.
type ImportResult struct {
	Kind core.Kind `json:"kind"`
	Rows int       `json:"rows"`
}

// Export renders the current collection of kind as a workbook.
func (p *Portal) Export(kind core.Kind) ([]byte, string, error) {
	p.mu.RLock()
	recs := p.state.Collection(kind)
	data, err := spreadsheet.Export(kind, recs)
	p.mu.RUnlock()
	if err != nil {
		return nil, "", fmt.Errorf("export %s: %w", kind, err)
	}
	return data, kind.ExportFilename(), nil
}

// StageImport parses and validates a workbook and parks it under a token.
// Nothing is written until CommitImport.
func (p *Portal) StageImport(ctx context.Context, kind core.Kind, r io.Reader) (ImportPreview, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImportBytes+1))
	if err != nil {
		return ImportPreview{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImportBytes {
		p.metrics.RecordImport(kind, "rejected")
		return ImportPreview{}, ErrImportTooLarge
	}

	recs, cols, err := decodeImport(kind, data)
	if err != nil {
		p.metrics.RecordImport(kind, "rejected")
		return ImportPreview{}, err
	}

	staged := StagedImport{
		Token:     uuid.NewString(),
		Kind:      kind,
		Data:      data,
		CreatedAt: p.now(),
	}
	if err := p.imports.Set(ctx, staged.Token, staged); err != nil {
		return ImportPreview{}, fmt.Errorf("stage import: %w", err)
	}
	p.metrics.RecordImport(kind, "staged")

	p.mu.RLock()
	replaces := len(p.state.Collection(kind))
	p.mu.RUnlock()

	p.log.InfoContext(ctx, "Import staged",
		applog.FieldKind, kind, applog.FieldToken, staged.Token, applog.FieldRows, len(recs))
	return ImportPreview{
		Token:     staged.Token,
		Kind:      kind,
		Rows:      len(recs),
		Columns:   cols,
		Replaces:  replaces,
		ExpiresAt: staged.CreatedAt.Add(p.importTTL),
	}, nil
}

// CommitImport replaces the collection with the staged workbook.
func (p *Portal) CommitImport(ctx context.Context, token string) (ImportResult, error) {
	staged, ok, err := p.imports.Get(ctx, token)
	if err != nil {
		return ImportResult{}, fmt.Errorf("load staged import: %w", err)
	}
	if !ok || p.now().After(staged.CreatedAt.Add(p.importTTL)) {
		return ImportResult{}, ErrImportExpired
	}
	kind := staged.Kind
	recs, _, err := decodeImport(kind, staged.Data)
	if err != nil {
		return ImportResult{}, err
	}

	p.mu.Lock()
	err = p.store.Replace(ctx, kind, recs)
	p.metrics.RecordWrite(kind, applog.OpReplace, err)
	if err != nil {
		p.mu.Unlock()
		return ImportResult{}, fmt.Errorf("replace %s: %w", kind, err)
	}
	p.state = p.state.With(kind, recs)
	p.version++
	snapshot := p.state
	p.mu.Unlock()

	if err := p.imports.Delete(ctx, token); err != nil {
		p.log.WarnContext(ctx, "Failed to drop committed import", applog.FieldToken, token, applog.FieldError, err)
	}
	p.metrics.SetRecords(snapshot)
	p.metrics.RecordImport(kind, "committed")

	evt := amqp.NewRecordEvent(kind, amqp.OpReplace, "")
	evt.Rows = len(recs)
	p.publish(ctx, evt)
	p.log.InfoContext(ctx, "Import committed", applog.FieldKind, kind, applog.FieldRows, len(recs))
	return ImportResult{Kind: kind, Rows: len(recs)}, nil
}

// CancelImport drops a staged import. Unknown tokens are not an error.
func (p *Portal) CancelImport(ctx context.Context, token string) error {
	staged, ok, _ := p.imports.Get(ctx, token)
	if err := p.imports.Delete(ctx, token); err != nil {
		return fmt.Errorf("cancel import: %w", err)
	}
	if ok {
		p.metrics.RecordImport(staged.Kind, "cancelled")
	}
	return nil
}

// decodeImport parses a workbook into records ready for Replace: rows
// without an id get a fresh one, repeated ids reject the file.
func decodeImport(kind core.Kind, data []byte) ([]core.Record, []string, error) {
	sheet, err := spreadsheet.Import(kind, bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]int, len(sheet.Records))
	out := make([]core.Record, len(sheet.Records))
	for i, r := range sheet.Records {
		rec := store.PrepareCreate(r)
		id := rec.ID()
		if row, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("%w: %q on records %d and %d", ErrImportDuplicate, id, row+1, i+1)
		}
		seen[id] = i
		out[i] = rec
	}
	return out, sheet.Columns, nil
}
