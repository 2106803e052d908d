package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoflow/internal/codec"
	"autoflow/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no workflow has the requested id
var ErrNotFound = errors.New("workflow not found")

// Record is a stored workflow together with what went wrong decoding it.
// Corrupt is set when the trigger or action list as a whole is unreadable;
// Workflow is still populated with the columns that did decode. RawTriggers
// and RawActions hold the list columns exactly as stored.
type Record struct {
	Workflow     *models.Workflow
	DecodeErrors []*codec.DecodeError
	Corrupt      error
	RawTriggers  []byte
	RawActions   []byte
}

// WorkflowStore persists workflows in the workflows table
type WorkflowStore struct {
	db     *DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewWorkflowStore creates a store on top of db
func NewWorkflowStore(db *DB, logger *zap.Logger) *WorkflowStore {
	return &WorkflowStore{db: db, clock: time.Now, logger: logger}
}

const selectColumns = `SELECT id, workflow_name, is_enabled, trigger_details, action_details, trigger_logic, mode_id, created_at, updated_at FROM workflows`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		wf       models.Workflow
		triggers []byte
		actions  []byte
		modeID   sql.NullString
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Enabled, &triggers, &actions, &wf.Logic, &modeID, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	if modeID.Valid {
		wf.ModeID = &modeID.String
	}

	rec := &Record{Workflow: &wf, RawTriggers: triggers, RawActions: actions}
	ts, tErrs, err := codec.DecodeTriggers(triggers)
	if err != nil {
		rec.Corrupt = err
	}
	as, aErrs, err := codec.DecodeActions(actions)
	if err != nil && rec.Corrupt == nil {
		rec.Corrupt = err
	}
	wf.Triggers = ts
	wf.Actions = as
	wf.BindRegions()
	rec.DecodeErrors = append(tErrs, aErrs...)
	return rec, nil
}

// List returns all workflows, or only enabled ones, oldest first
func (s *WorkflowStore) List(ctx context.Context, enabledOnly bool) ([]*Record, error) {
	query := selectColumns
	if enabledOnly {
		query += ` WHERE is_enabled = TRUE`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if rec.Corrupt != nil || len(rec.DecodeErrors) > 0 {
			s.logger.Warn("workflow has undecodable entries",
				zap.String("workflow_id", rec.Workflow.ID),
				zap.Int("decode_errors", len(rec.DecodeErrors)),
				zap.NamedError("corrupt", rec.Corrupt))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return records, nil
}

// Get fetches one workflow
func (s *WorkflowStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.conn.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	return rec, nil
}

func encodeLists(wf *models.Workflow) (string, string, error) {
	triggers, err := codec.EncodeTriggers(wf.Triggers)
	if err != nil {
		return "", "", err
	}
	actions, err := codec.EncodeActions(wf.Actions)
	if err != nil {
		return "", "", err
	}
	return string(triggers), string(actions), nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Insert stores a new workflow, assigning its id and timestamps
func (s *WorkflowStore) Insert(ctx context.Context, wf *models.Workflow) error {
	triggers, actions, err := encodeLists(wf)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := s.clock().UTC().Truncate(time.Microsecond)
	wf.CreatedAt, wf.UpdatedAt = now, now

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO workflows (id, workflow_name, is_enabled, trigger_details, action_details, trigger_logic, mode_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wf.ID, wf.Name, wf.Enabled, triggers, actions, wf.Logic, nullable(wf.ModeID), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	wf.BindRegions()
	return nil
}

// Update replaces every mutable column of an existing workflow
func (s *WorkflowStore) Update(ctx context.Context, wf *models.Workflow) error {
	triggers, actions, err := encodeLists(wf)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", wf.ID, err)
	}
	wf.UpdatedAt = s.clock().UTC().Truncate(time.Microsecond)

	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE workflows SET workflow_name = $2, is_enabled = $3, trigger_details = $4, action_details = $5, trigger_logic = $6, mode_id = $7, updated_at = $8
		 WHERE id = $1`,
		wf.ID, wf.Name, wf.Enabled, triggers, actions, wf.Logic, nullable(wf.ModeID), wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", wf.ID, err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	wf.BindRegions()
	return nil
}

// Restore writes a previously read record back as it was stored, including
// list entries that never decoded
func (s *WorkflowStore) Restore(ctx context.Context, rec *Record) error {
	wf := rec.Workflow
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE workflows SET workflow_name = $2, is_enabled = $3, trigger_details = $4, action_details = $5, trigger_logic = $6, mode_id = $7, updated_at = $8
		 WHERE id = $1`,
		wf.ID, wf.Name, wf.Enabled, string(rec.RawTriggers), string(rec.RawActions), wf.Logic, nullable(wf.ModeID), wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("restore workflow %s: %w", wf.ID, err)
	}
	return expectRow(res)
}

// SetEnabled toggles a workflow
func (s *WorkflowStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE workflows SET is_enabled = $2, updated_at = $3 WHERE id = $1`,
		id, enabled, s.clock().UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("set enabled on %s: %w", id, err)
	}
	return expectRow(res)
}

// Delete removes a workflow
func (s *WorkflowStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return expectRow(res)
}

// DeleteByMode removes every workflow owned by a mode and returns their ids
func (s *WorkflowStore) DeleteByMode(ctx context.Context, modeID string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `DELETE FROM workflows WHERE mode_id = $1 RETURNING id`, modeID)
	if err != nil {
		return nil, fmt.Errorf("delete workflows of mode %s: %w", modeID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("delete workflows of mode %s: %w", modeID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete workflows of mode %s: %w", modeID, err)
	}
	return ids, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
