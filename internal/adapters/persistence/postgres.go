package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/chatflow/workflow-core/internal/platform/database"
	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
)

// PostgresAdapter implements repository.PersistenceAdapter backed by
// workflow_service.workflows / workflow_service.executions tables.
type PostgresAdapter struct {
	db  *database.DB
	enc *Encryptor
}

// NewPostgresAdapter wires db. enc may be nil, in which case http_request
// Auth fields are stored as given (used by tests that don't care about the
// credential-encryption envelope).
func NewPostgresAdapter(db *database.DB, enc *Encryptor) *PostgresAdapter {
	return &PostgresAdapter{db: db, enc: enc}
}

func (a *PostgresAdapter) ListWorkflows(ctx context.Context, opts repository.ListOptions) ([]repository.WorkflowRecord, error) {
	query := `
		SELECT uuid, name, description, bot_id, trigger_type, trigger_config,
		       nodes, edges, status, version, workflow_metadata, created_at, updated_at
		FROM workflow_service.workflows
	`
	args := []interface{}{}
	if opts.BotID != nil {
		query += " WHERE bot_id = $1"
		args = append(args, *opts.BotID)
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortColumn(opts.SortBy), sortDirection(opts.SortOrder))
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: listing workflows: %w", err)
	}
	defer rows.Close()

	var out []repository.WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflowRow(rows)
		if err != nil {
			return nil, err
		}
		if a.enc != nil {
			if err := a.enc.DecryptWorkflowNodes(rec.Nodes); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *PostgresAdapter) GetWorkflow(ctx context.Context, id string) (*repository.WorkflowRecord, error) {
	query := `
		SELECT uuid, name, description, bot_id, trigger_type, trigger_config,
		       nodes, edges, status, version, workflow_metadata, created_at, updated_at
		FROM workflow_service.workflows WHERE uuid = $1
	`
	row := a.db.QueryRowContext(ctx, query, id)
	rec, err := scanWorkflowRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if a.enc != nil {
		if err := a.enc.DecryptWorkflowNodes(rec.Nodes); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (a *PostgresAdapter) InsertWorkflow(ctx context.Context, rec repository.WorkflowRecord) (string, error) {
	if a.enc != nil {
		if err := a.enc.EncryptWorkflowNodes(rec.Nodes); err != nil {
			return "", err
		}
	}
	triggerConfig, err := json.Marshal(rec.TriggerConfig)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing trigger_config: %w", err)
	}
	nodes, err := json.Marshal(rec.Nodes)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing nodes: %w", err)
	}
	edges, err := json.Marshal(rec.Edges)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing edges: %w", err)
	}
	meta, err := json.Marshal(rec.WorkflowMeta)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing workflow_metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_service.workflows (
			uuid, name, description, bot_id, trigger_type, trigger_config,
			nodes, edges, status, version, workflow_metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = a.db.ExecContext(ctx, query,
		rec.UUID, rec.Name, rec.Description, database.NullString(rec.BotID),
		rec.TriggerType, triggerConfig, nodes, edges, rec.Status, rec.Version,
		meta, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", fmt.Errorf("persistence: workflow %s already exists: %w", rec.UUID, err)
		}
		return "", fmt.Errorf("persistence: inserting workflow: %w", err)
	}
	return rec.UUID, nil
}

func (a *PostgresAdapter) UpdateWorkflow(ctx context.Context, id string, fields map[string]interface{}) error {
	if a.enc != nil {
		if nodes, ok := fields["nodes"].(map[string]interface{}); ok {
			if err := a.enc.EncryptWorkflowNodes(nodes); err != nil {
				return err
			}
		}
	}
	set, args, err := buildWorkflowSetClause(fields)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE workflow_service.workflows
		SET %s, version = version + 1, updated_at = now()
		WHERE uuid = $%d
	`, set, len(args)+1)
	args = append(args, id)

	if expected, has := fields["expected_version"]; has {
		query += fmt.Sprintf(" AND version = $%d", len(args)+1)
		args = append(args, expected)
	}

	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("persistence: updating workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("persistence: reading rows affected: %w", err)
	}
	if rows == 0 {
		if _, has := fields["expected_version"]; has {
			return repository.ErrOptimisticLock
		}
		return repository.ErrNotFound
	}
	return nil
}

func (a *PostgresAdapter) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, "DELETE FROM workflow_service.workflows WHERE uuid = $1", id)
	if err != nil {
		return fmt.Errorf("persistence: deleting workflow: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("persistence: reading rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (a *PostgresAdapter) ListExecutions(ctx context.Context, workflowID string, opts repository.ListOptions) ([]repository.ExecutionRecord, error) {
	query := `
		SELECT uuid, workflow_uuid, trigger_data, status, started_at, finished_at,
		       execution_path, node_outputs, error
		FROM workflow_service.executions WHERE workflow_uuid = $1
	`
	query += fmt.Sprintf(" ORDER BY started_at %s", sortDirection(opts.SortOrder))
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("persistence: listing executions: %w", err)
	}
	defer rows.Close()

	var out []repository.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *PostgresAdapter) GetExecution(ctx context.Context, id string) (*repository.ExecutionRecord, error) {
	query := `
		SELECT uuid, workflow_uuid, trigger_data, status, started_at, finished_at,
		       execution_path, node_outputs, error
		FROM workflow_service.executions WHERE uuid = $1
	`
	rec, err := scanExecutionRow(a.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (a *PostgresAdapter) InsertExecution(ctx context.Context, rec repository.ExecutionRecord) (string, error) {
	triggerData, err := json.Marshal(rec.TriggerData)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing trigger_data: %w", err)
	}
	nodeOutputs, err := json.Marshal(rec.NodeOutputs)
	if err != nil {
		return "", fmt.Errorf("persistence: serializing node_outputs: %w", err)
	}

	query := `
		INSERT INTO workflow_service.executions (
			uuid, workflow_uuid, trigger_data, status, started_at, finished_at,
			execution_path, node_outputs, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = a.db.ExecContext(ctx, query,
		rec.UUID, rec.WorkflowUUID, triggerData, rec.Status, rec.StartedAt,
		database.NullTime(rec.FinishedAt), pq.Array(rec.ExecutionPath), nodeOutputs,
		database.NullString(rec.Error),
	)
	if err != nil {
		return "", fmt.Errorf("persistence: inserting execution: %w", err)
	}
	return rec.UUID, nil
}

func (a *PostgresAdapter) UpdateExecution(ctx context.Context, id string, fields map[string]interface{}) error {
	set, args, err := buildExecutionSetClause(fields)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE workflow_service.executions SET %s WHERE uuid = $%d", set, len(args)+1)
	args = append(args, id)

	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("persistence: updating execution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("persistence: reading rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (a *PostgresAdapter) DeleteExecutionsByWorkflow(ctx context.Context, workflowID string) error {
	_, err := a.db.ExecContext(ctx, "DELETE FROM workflow_service.executions WHERE workflow_uuid = $1", workflowID)
	if err != nil {
		return fmt.Errorf("persistence: deleting executions: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflowRow(row rowScanner) (repository.WorkflowRecord, error) {
	var (
		rec                                      repository.WorkflowRecord
		botID                                    sql.NullString
		triggerConfig, nodes, edges, workflowMeta []byte
	)
	if err := row.Scan(
		&rec.UUID, &rec.Name, &rec.Description, &botID, &rec.TriggerType,
		&triggerConfig, &nodes, &edges, &rec.Status, &rec.Version, &workflowMeta,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return rec, err
	}
	if botID.Valid {
		rec.BotID = &botID.String
	}
	if err := json.Unmarshal(triggerConfig, &rec.TriggerConfig); err != nil {
		return rec, fmt.Errorf("persistence: deserializing trigger_config: %w", err)
	}
	if err := json.Unmarshal(nodes, &rec.Nodes); err != nil {
		return rec, fmt.Errorf("persistence: deserializing nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &rec.Edges); err != nil {
		return rec, fmt.Errorf("persistence: deserializing edges: %w", err)
	}
	if err := json.Unmarshal(workflowMeta, &rec.WorkflowMeta); err != nil {
		return rec, fmt.Errorf("persistence: deserializing workflow_metadata: %w", err)
	}
	return rec, nil
}

func scanExecutionRow(row rowScanner) (repository.ExecutionRecord, error) {
	var (
		rec                      repository.ExecutionRecord
		triggerData, nodeOutputs []byte
		finishedAt               sql.NullTime
		errMsg                   sql.NullString
	)
	if err := row.Scan(
		&rec.UUID, &rec.WorkflowUUID, &triggerData, &rec.Status, &rec.StartedAt,
		&finishedAt, pq.Array(&rec.ExecutionPath), &nodeOutputs, &errMsg,
	); err != nil {
		return rec, err
	}
	if finishedAt.Valid {
		rec.FinishedAt = &finishedAt.Time
	}
	if errMsg.Valid {
		rec.Error = &errMsg.String
	}
	if err := json.Unmarshal(triggerData, &rec.TriggerData); err != nil {
		return rec, fmt.Errorf("persistence: deserializing trigger_data: %w", err)
	}
	if err := json.Unmarshal(nodeOutputs, &rec.NodeOutputs); err != nil {
		return rec, fmt.Errorf("persistence: deserializing node_outputs: %w", err)
	}
	return rec, nil
}

func buildWorkflowSetClause(fields map[string]interface{}) (string, []interface{}, error) {
	columns := map[string]string{
		"name": "name", "description": "description", "bot_id": "bot_id",
		"trigger_type": "trigger_type", "trigger_config": "trigger_config",
		"nodes": "nodes", "edges": "edges", "status": "status",
		"workflow_metadata": "workflow_metadata",
	}
	set := ""
	var args []interface{}
	for key, column := range columns {
		value, has := fields[key]
		if !has {
			continue
		}
		var err error
		value, err = marshalIfMap(value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, value)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	if set == "" {
		return "", nil, fmt.Errorf("persistence: no updatable fields given")
	}
	return set, args, nil
}

func buildExecutionSetClause(fields map[string]interface{}) (string, []interface{}, error) {
	columns := map[string]string{
		"status": "status", "finished_at": "finished_at",
		"execution_path": "execution_path", "node_outputs": "node_outputs", "error": "error",
	}
	set := ""
	var args []interface{}
	for key, column := range columns {
		value, has := fields[key]
		if !has {
			continue
		}
		var err error
		value, err = marshalIfMap(value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, value)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	if set == "" {
		return "", nil, fmt.Errorf("persistence: no updatable fields given")
	}
	return set, args, nil
}

func marshalIfMap(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("persistence: serializing field: %w", err)
		}
		return data, nil
	case []string:
		return pq.Array(v), nil
	case *string:
		return database.NullString(v), nil
	case *time.Time:
		return database.NullTime(v), nil
	default:
		return value, nil
	}
}

func sortColumn(sortBy string) string {
	switch sortBy {
	case "name", "created_at", "status":
		return sortBy
	default:
		return "updated_at"
	}
}

func sortDirection(order repository.SortOrder) string {
	if order == repository.SortDescending {
		return "DESC"
	}
	return "ASC"
}
