package persistence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatflow/workflow-core/internal/platform/config"
	"github.com/chatflow/workflow-core/internal/workflow/domain/repository"
)

// MongoAdapter implements repository.PersistenceAdapter over the `workflows`
// and `executions` collections of a single Mongo database.
type MongoAdapter struct {
	workflows  *mongo.Collection
	executions *mongo.Collection
	enc        *Encryptor
}

// NewMongoAdapter connects to cfg.URI and pins the adapter to cfg.Database.
// enc may be nil, in which case http_request Auth fields are stored as given.
func NewMongoAdapter(ctx context.Context, cfg config.MongoConfig, enc *Encryptor) (*MongoAdapter, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI).SetConnectTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("persistence: connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("persistence: pinging mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	return &MongoAdapter{
		workflows:  db.Collection("workflows"),
		executions: db.Collection("executions"),
		enc:        enc,
	}, nil
}

type workflowDoc struct {
	UUID          string                 `bson:"uuid"`
	Name          string                 `bson:"name"`
	Description   string                 `bson:"description"`
	BotID         *string                `bson:"bot_id,omitempty"`
	TriggerType   string                 `bson:"trigger_type"`
	TriggerConfig map[string]interface{} `bson:"trigger_config"`
	Nodes         map[string]interface{} `bson:"nodes"`
	Edges         map[string]interface{} `bson:"edges"`
	Status        string                 `bson:"status"`
	Version       int                    `bson:"version"`
	WorkflowMeta  map[string]interface{} `bson:"workflow_metadata"`
	CreatedAt     time.Time              `bson:"created_at"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

type executionDoc struct {
	UUID          string                 `bson:"uuid"`
	WorkflowUUID  string                 `bson:"workflow_uuid"`
	TriggerData   map[string]interface{} `bson:"trigger_data"`
	Status        string                 `bson:"status"`
	StartedAt     time.Time              `bson:"started_at"`
	FinishedAt    *time.Time             `bson:"finished_at,omitempty"`
	ExecutionPath []string               `bson:"execution_path"`
	NodeOutputs   map[string]interface{} `bson:"node_outputs"`
	Error         *string                `bson:"error,omitempty"`
}

func toWorkflowRecord(d workflowDoc) repository.WorkflowRecord {
	return repository.WorkflowRecord{
		UUID: d.UUID, Name: d.Name, Description: d.Description, BotID: d.BotID,
		TriggerType: d.TriggerType, TriggerConfig: d.TriggerConfig, Nodes: d.Nodes,
		Edges: d.Edges, Status: d.Status, Version: d.Version, WorkflowMeta: d.WorkflowMeta,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func toWorkflowDoc(rec repository.WorkflowRecord) workflowDoc {
	return workflowDoc{
		UUID: rec.UUID, Name: rec.Name, Description: rec.Description, BotID: rec.BotID,
		TriggerType: rec.TriggerType, TriggerConfig: rec.TriggerConfig, Nodes: rec.Nodes,
		Edges: rec.Edges, Status: rec.Status, Version: rec.Version, WorkflowMeta: rec.WorkflowMeta,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
}

func toExecutionRecord(d executionDoc) repository.ExecutionRecord {
	return repository.ExecutionRecord{
		UUID: d.UUID, WorkflowUUID: d.WorkflowUUID, TriggerData: d.TriggerData,
		Status: d.Status, StartedAt: d.StartedAt, FinishedAt: d.FinishedAt,
		ExecutionPath: d.ExecutionPath, NodeOutputs: d.NodeOutputs, Error: d.Error,
	}
}

func toExecutionDoc(rec repository.ExecutionRecord) executionDoc {
	return executionDoc{
		UUID: rec.UUID, WorkflowUUID: rec.WorkflowUUID, TriggerData: rec.TriggerData,
		Status: rec.Status, StartedAt: rec.StartedAt, FinishedAt: rec.FinishedAt,
		ExecutionPath: rec.ExecutionPath, NodeOutputs: rec.NodeOutputs, Error: rec.Error,
	}
}

func (a *MongoAdapter) ListWorkflows(ctx context.Context, opts repository.ListOptions) ([]repository.WorkflowRecord, error) {
	filter := bson.M{}
	if opts.BotID != nil {
		filter["bot_id"] = *opts.BotID
	}

	findOpts := options.Find()
	sortField := opts.SortBy
	if sortField == "" {
		sortField = "updated_at"
	}
	direction := 1
	if opts.SortOrder == repository.SortDescending {
		direction = -1
	}
	findOpts.SetSort(bson.D{{Key: sortField, Value: direction}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := a.workflows.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("persistence: listing workflows: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []workflowDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("persistence: decoding workflows: %w", err)
	}
	out := make([]repository.WorkflowRecord, len(docs))
	for i, d := range docs {
		out[i] = toWorkflowRecord(d)
		if a.enc != nil {
			if err := a.enc.DecryptWorkflowNodes(out[i].Nodes); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (a *MongoAdapter) GetWorkflow(ctx context.Context, id string) (*repository.WorkflowRecord, error) {
	var doc workflowDoc
	err := a.workflows.FindOne(ctx, bson.M{"uuid": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: getting workflow: %w", err)
	}
	rec := toWorkflowRecord(doc)
	if a.enc != nil {
		if err := a.enc.DecryptWorkflowNodes(rec.Nodes); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (a *MongoAdapter) InsertWorkflow(ctx context.Context, rec repository.WorkflowRecord) (string, error) {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Version == 0 {
		rec.Version = 1
	}
	if a.enc != nil {
		if err := a.enc.EncryptWorkflowNodes(rec.Nodes); err != nil {
			return "", err
		}
	}
	if _, err := a.workflows.InsertOne(ctx, toWorkflowDoc(rec)); err != nil {
		return "", fmt.Errorf("persistence: inserting workflow: %w", err)
	}
	return rec.UUID, nil
}

func (a *MongoAdapter) UpdateWorkflow(ctx context.Context, id string, fields map[string]interface{}) error {
	filter := bson.M{"uuid": id}
	if expected, has := fields["expected_version"]; has {
		filter["version"] = expected
	}
	if a.enc != nil {
		if nodes, ok := fields["nodes"].(map[string]interface{}); ok {
			if err := a.enc.EncryptWorkflowNodes(nodes); err != nil {
				return err
			}
		}
	}

	set := bson.M{"updated_at": time.Now()}
	for _, key := range []string{"name", "description", "bot_id", "trigger_type", "trigger_config", "nodes", "edges", "status", "workflow_metadata"} {
		if v, has := fields[key]; has {
			set[key] = v
		}
	}

	result, err := a.workflows.UpdateOne(ctx, filter, bson.M{"$set": set, "$inc": bson.M{"version": 1}})
	if err != nil {
		return fmt.Errorf("persistence: updating workflow: %w", err)
	}
	if result.MatchedCount == 0 {
		if _, has := fields["expected_version"]; has {
			if exists, _ := a.workflows.CountDocuments(ctx, bson.M{"uuid": id}); exists > 0 {
				return repository.ErrOptimisticLock
			}
		}
		return repository.ErrNotFound
	}
	return nil
}

func (a *MongoAdapter) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := a.workflows.DeleteOne(ctx, bson.M{"uuid": id})
	if err != nil {
		return fmt.Errorf("persistence: deleting workflow: %w", err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (a *MongoAdapter) ListExecutions(ctx context.Context, workflowID string, opts repository.ListOptions) ([]repository.ExecutionRecord, error) {
	findOpts := options.Find()
	direction := 1
	if opts.SortOrder == repository.SortDescending {
		direction = -1
	}
	findOpts.SetSort(bson.D{{Key: "started_at", Value: direction}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := a.executions.Find(ctx, bson.M{"workflow_uuid": workflowID}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("persistence: listing executions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []executionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("persistence: decoding executions: %w", err)
	}
	out := make([]repository.ExecutionRecord, len(docs))
	for i, d := range docs {
		out[i] = toExecutionRecord(d)
	}
	return out, nil
}

func (a *MongoAdapter) GetExecution(ctx context.Context, id string) (*repository.ExecutionRecord, error) {
	var doc executionDoc
	err := a.executions.FindOne(ctx, bson.M{"uuid": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: getting execution: %w", err)
	}
	rec := toExecutionRecord(doc)
	return &rec, nil
}

func (a *MongoAdapter) InsertExecution(ctx context.Context, rec repository.ExecutionRecord) (string, error) {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if _, err := a.executions.InsertOne(ctx, toExecutionDoc(rec)); err != nil {
		return "", fmt.Errorf("persistence: inserting execution: %w", err)
	}
	return rec.UUID, nil
}

func (a *MongoAdapter) UpdateExecution(ctx context.Context, id string, fields map[string]interface{}) error {
	set := bson.M{}
	for _, key := range []string{"status", "finished_at", "execution_path", "node_outputs", "error"} {
		if v, has := fields[key]; has {
			set[key] = v
		}
	}
	result, err := a.executions.UpdateOne(ctx, bson.M{"uuid": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("persistence: updating execution: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (a *MongoAdapter) DeleteExecutionsByWorkflow(ctx context.Context, workflowID string) error {
	if _, err := a.executions.DeleteMany(ctx, bson.M{"workflow_uuid": workflowID}); err != nil {
		return fmt.Errorf("persistence: deleting executions: %w", err)
	}
	return nil
}
