package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"autoflow/internal/codec"
	"autoflow/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var columns = []string{"id", "workflow_name", "is_enabled", "trigger_details", "action_details", "trigger_logic", "mode_id", "created_at", "updated_at"}

func setupStore(t *testing.T) (*WorkflowStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewWorkflowStore(NewFromConn(conn), zap.NewNop())
	store.clock = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }
	return store, mock
}

func TestListEnabledWorkflows(t *testing.T) {
	store, mock := setupStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(columns).
		AddRow("wf-1", "Home WiFi", true,
			[]byte(`[{"type":"WIFI","ssid":"Home","state":"CONNECTED"}]`),
			[]byte(`[{"type":"NOTIFICATION","title":"X","priority":"Normal"}]`),
			"OR", nil, created, created).
		AddRow("wf-2", "Legacy", true,
			[]byte(`[{"type":"NFC_TAG"},{"type":"LOCATION","latitude":1,"longitude":2,"radius":100,"triggerOnEntry":true}]`),
			[]byte(`[]`),
			"AND", "mode-7", created, created).
		AddRow("wf-3", "Broken", true, []byte(`{oops`), []byte(`[]`), "OR", nil, created, created)

	mock.ExpectQuery(`SELECT (.+) FROM workflows WHERE is_enabled = TRUE ORDER BY created_at`).WillReturnRows(rows)

	records, err := store.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0].Workflow
	assert.Equal(t, "Home WiFi", first.Name)
	require.Len(t, first.Triggers, 1)
	assert.Equal(t, models.TriggerWiFi, first.Triggers[0].Type())
	assert.Equal(t, []models.Action{models.NotificationAction{Title: "X", Priority: "Normal"}}, first.Actions)
	assert.Nil(t, first.ModeID)

	second := records[1]
	require.Len(t, second.Workflow.Triggers, 1)
	loc, ok := second.Workflow.Triggers[0].(models.LocationTrigger)
	require.True(t, ok)
	assert.Equal(t, "workflow_wf-2", loc.RegionID)
	require.Len(t, second.DecodeErrors, 1)
	assert.ErrorIs(t, second.DecodeErrors[0], codec.ErrUnknownVariant)
	require.NotNil(t, second.Workflow.ModeID)
	assert.Equal(t, "mode-7", *second.Workflow.ModeID)

	assert.Error(t, records[2].Corrupt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAll(t *testing.T) {
	store, mock := setupStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM workflows ORDER BY created_at`).WillReturnRows(sqlmock.NewRows(columns))

	records, err := store.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueryError(t *testing.T) {
	store, mock := setupStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM workflows`).WillReturnError(errors.New("connection reset"))

	_, err := store.List(context.Background(), true)
	assert.ErrorContains(t, err, "connection reset")
}

func TestGetNotFound(t *testing.T) {
	store, mock := setupStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM workflows WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAssignsIDAndTimestamps(t *testing.T) {
	store, mock := setupStore(t)
	wf := &models.Workflow{
		Name:     "Night",
		Enabled:  true,
		Logic:    models.LogicOR,
		Triggers: []models.Trigger{models.TimeTrigger{Time: "22:00"}},
		Actions:  []models.Action{models.SoundModeAction{Mode: models.SoundSilent}},
	}

	mock.ExpectExec(`INSERT INTO workflows`).
		WithArgs(sqlmock.AnyArg(), "Night", true,
			`[{"type":"TIME","time":"22:00"}]`,
			`[{"type":"SET_SOUND_MODE","mode":"Silent"}]`,
			"OR", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), wf))
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC), wf.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreKeepsUndecodableEntries(t *testing.T) {
	store, mock := setupStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	triggers := `[{"type":"NFC_TAG","tag":"desk"},{"type":"WIFI","state":"ON"}]`
	actions := `[{"type":"VIBRATE_TWICE"},{"type":"NOTIFICATION","title":"X","priority":"Normal"}]`

	mock.ExpectQuery(`SELECT (.+) FROM workflows WHERE id = \$1`).
		WithArgs("wf-legacy").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("wf-legacy", "Legacy", true, []byte(triggers), []byte(actions), "OR", nil, created, updated))

	rec, err := store.Get(context.Background(), "wf-legacy")
	require.NoError(t, err)
	require.Len(t, rec.DecodeErrors, 2)
	require.Len(t, rec.Workflow.Triggers, 1)

	mock.ExpectExec(`UPDATE workflows SET workflow_name`).
		WithArgs("wf-legacy", "Legacy", true, triggers, actions, "OR", nil, updated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Restore(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingWorkflow(t *testing.T) {
	store, mock := setupStore(t)
	wf := &models.Workflow{ID: "gone", Name: "x", Logic: models.LogicOR}

	mock.ExpectExec(`UPDATE workflows SET workflow_name`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Update(context.Background(), wf), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetEnabledAndDelete(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectExec(`UPDATE workflows SET is_enabled`).
		WithArgs("wf-1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM workflows WHERE id`).
		WithArgs("wf-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM workflows WHERE id`).
		WithArgs("wf-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, store.SetEnabled(ctx, "wf-1", false))
	require.NoError(t, store.Delete(ctx, "wf-1"))
	assert.ErrorIs(t, store.Delete(ctx, "wf-1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByMode(t *testing.T) {
	store, mock := setupStore(t)
	mock.ExpectQuery(`DELETE FROM workflows WHERE mode_id = \$1 RETURNING id`).
		WithArgs("mode-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := store.DeleteByMode(context.Background(), "mode-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS workflows`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewFromConn(conn).EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
