// Package features holds the Workflow Manager's higher-level behaviors that
// sit above the raw aggregate: text (de)serialization and the debug-session
// index.
package features

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatflow/workflow-core/internal/workflow/domain/model"
)

// Serializer converts between a Workflow aggregate and its YAML text form
// (§4.C). The document's declared key order is id, name, description,
// version, status, trigger_types, bot_id, tags, category, variables, nodes,
// edges, metadata; emission always wraps the document under a top-level
// `workflow` key, but load accepts either the wrapped or bare form.
type Serializer struct{}

func NewSerializer() *Serializer { return &Serializer{} }

type yamlDocument struct {
	ID           string                 `yaml:"id,omitempty"`
	Name         string                 `yaml:"name"`
	Description  string                 `yaml:"description,omitempty"`
	Version      int                    `yaml:"version"`
	Status       string                 `yaml:"status"`
	TriggerTypes []string               `yaml:"trigger_types,omitempty"`
	BotID        *string                `yaml:"bot_id,omitempty"`
	Tags         []string               `yaml:"tags,omitempty"`
	Category     string                 `yaml:"category,omitempty"`
	Variables    map[string]yamlVarDecl `yaml:"variables,omitempty"`
	Nodes        []yamlNode             `yaml:"nodes"`
	Edges        []yamlEdge             `yaml:"edges,omitempty"`
	Metadata     map[string]interface{} `yaml:"metadata,omitempty"`
}

type yamlVarDecl struct {
	Default      interface{} `yaml:"default,omitempty"`
	DeclaredType string      `yaml:"declared_type,omitempty"`
	Scope        string      `yaml:"scope,omitempty"`
}

type yamlPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type yamlNode struct {
	ID           string                 `yaml:"id"`
	Type         string                 `yaml:"type"`
	Name         string                 `yaml:"name,omitempty"`
	Position     *yamlPosition          `yaml:"position,omitempty"`
	TimeoutSecs  *int                   `yaml:"timeout_seconds,omitempty"`
	Retry        int                    `yaml:"retry,omitempty"`
	ErrorHandler string                 `yaml:"error_handler,omitempty"`
	Config       map[string]interface{} `yaml:",inline"`
}

type yamlEdge struct {
	ID        string            `yaml:"id"`
	Source    string            `yaml:"source"`
	Target    string            `yaml:"target"`
	Label     *string           `yaml:"label,omitempty"`
	Condition *yamlEdgeCondition `yaml:"condition,omitempty"`
}

type yamlEdgeCondition struct {
	Type     string      `yaml:"type,omitempty"`
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

// Export renders w as a YAML document wrapped under a top-level `workflow`
// key, with default_flow_style=false (yaml.v3's block style, the package
// default for Marshal).
func (s *Serializer) Export(w *model.Workflow) ([]byte, error) {
	doc := toYAMLDocument(w)
	data, err := yaml.Marshal(map[string]yamlDocument{"workflow": doc})
	if err != nil {
		return nil, fmt.Errorf("serializer: marshaling workflow: %w", err)
	}
	return data, nil
}

// Import parses a YAML document (wrapped or bare) into a freshly
// reconstructed Workflow. Unknown enum strings are skipped with a warning;
// unknown top-level keys are otherwise dropped.
func (s *Serializer) Import(data []byte) (*model.Workflow, []string, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("serializer: parsing document: %w", err)
	}

	body := raw
	if inner, ok := raw["workflow"].(map[string]interface{}); ok {
		body = inner
	}

	reencoded, err := yaml.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("serializer: re-encoding document body: %w", err)
	}
	var doc yamlDocument
	if err := yaml.Unmarshal(reencoded, &doc); err != nil {
		return nil, nil, fmt.Errorf("serializer: decoding document body: %w", err)
	}

	var warnings []string
	w, warn := fromYAMLDocument(doc)
	warnings = append(warnings, warn...)
	return w, warnings, nil
}

func toYAMLDocument(w *model.Workflow) yamlDocument {
	doc := yamlDocument{
		ID:          w.ID().String(),
		Name:        w.Name(),
		Description: w.Description(),
		Version:     w.Version(),
		Status:      string(w.Status()),
		BotID:       w.BotID(),
		Tags:        w.Tags(),
		Category:    w.Category(),
		Metadata:    w.Metadata(),
	}
	for _, t := range w.TriggerTypes() {
		doc.TriggerTypes = append(doc.TriggerTypes, string(t))
	}
	doc.Variables = make(map[string]yamlVarDecl, len(w.Variables()))
	for name, decl := range w.Variables() {
		doc.Variables[name] = yamlVarDecl{Default: decl.Default, DeclaredType: decl.DeclaredType, Scope: decl.Scope}
	}
	for _, n := range w.Nodes() {
		doc.Nodes = append(doc.Nodes, toYAMLNode(n))
	}
	for _, e := range w.Edges() {
		doc.Edges = append(doc.Edges, toYAMLEdge(e))
	}
	return doc
}

func toYAMLNode(n model.Node) yamlNode {
	yn := yamlNode{ID: n.ID, Type: string(n.Type), Name: n.Name}
	if n.Position != nil {
		yn.Position = &yamlPosition{X: n.Position.X, Y: n.Position.Y}
	}

	var common model.NodeCommon
	config := map[string]interface{}{}
	switch c := n.Config.(type) {
	case model.EventStartConfig:
		common = c.NodeCommon
		config["trigger_type"] = string(c.TriggerType)
		if len(c.EventFilters) > 0 {
			config["event_filters"] = c.EventFilters
		}
	case model.ScheduleStartConfig:
		common = c.NodeCommon
		config["cron_expression"] = c.CronExpression
		config["timezone"] = c.Timezone
	case model.HTTPRequestConfig:
		common = c.NodeCommon
		config["method"] = c.Method
		config["url"] = c.URL
		if len(c.Headers) > 0 {
			config["headers"] = c.Headers
		}
		if c.Body != "" {
			config["body"] = c.Body
		}
		if len(c.Auth) > 0 {
			config["auth"] = c.Auth
		}
	case model.JSONProcessorConfig:
		common = c.NodeCommon
		config["operation"] = string(c.Operation)
		if c.Path != "" {
			config["path"] = c.Path
		}
		if c.Value != nil {
			config["value"] = c.Value
		}
	case model.ReplyMessageConfig:
		common = c.NodeCommon
		config["content"] = c.Content
		if c.ReplyTo != nil {
			config["reply_to"] = *c.ReplyTo
		}
		if len(c.Components) > 0 {
			config["components"] = c.Components
		}
	case model.SetVariableConfig:
		common = c.NodeCommon
		config["variable_name"] = c.VariableName
		if c.HasValue {
			config["value"] = c.Value
		}
	case model.GetVariableConfig:
		common = c.NodeCommon
		config["variable_name"] = c.VariableName
		if c.Default != nil {
			config["default"] = c.Default
		}
	case model.ConditionConfig:
		common = c.NodeCommon
		clauses := make([]map[string]interface{}, len(c.Clauses))
		for i, cl := range c.Clauses {
			clauses[i] = map[string]interface{}{"field": cl.Field, "operator": string(cl.Operator), "value": cl.Value}
		}
		config["clauses"] = clauses
		config["logic"] = string(c.Logic)
		if c.DefaultBranch != "" {
			config["default_branch"] = c.DefaultBranch
		}
	case model.ChatCommandBranchConfig:
		common = c.NodeCommon
		config["command_prefix"] = c.CommandPrefix
	case model.ToolActionConfig:
		common = c.NodeCommon
		config["tool_id"] = c.ToolID
		if len(c.Parameters) > 0 {
			config["parameters"] = c.Parameters
		}
	case model.EndConfig:
		common = c.NodeCommon
	}

	yn.TimeoutSecs = common.TimeoutSeconds
	yn.Retry = common.Retry
	if common.ErrorHandler != "" {
		yn.ErrorHandler = string(common.ErrorHandler)
	}
	yn.Config = config
	for k, v := range n.UnknownFields {
		yn.Config[k] = v
	}
	return yn
}

func toYAMLEdge(e model.Edge) yamlEdge {
	ye := yamlEdge{ID: e.ID, Source: e.Source, Target: e.Target, Label: e.Label}
	if e.Condition != nil {
		ye.Condition = &yamlEdgeCondition{
			Type: e.Condition.Type, Field: e.Condition.Field,
			Operator: string(e.Condition.Operator), Value: e.Condition.Value,
		}
	}
	return ye
}

func fromYAMLDocument(doc yamlDocument) (*model.Workflow, []string) {
	var warnings []string

	var triggerTypes []model.TriggerType
	for _, t := range doc.TriggerTypes {
		tt := model.TriggerType(t)
		if !validTriggerType(tt) {
			warnings = append(warnings, fmt.Sprintf("unknown trigger_type %q skipped", t))
			continue
		}
		triggerTypes = append(triggerTypes, tt)
	}

	variables := make(map[string]model.VariableDeclaration, len(doc.Variables))
	for name, v := range doc.Variables {
		variables[name] = model.VariableDeclaration{Default: v.Default, DeclaredType: v.DeclaredType, Scope: v.Scope}
	}

	nodes := make([]model.Node, 0, len(doc.Nodes))
	for _, yn := range doc.Nodes {
		n, warn, ok := fromYAMLNode(yn)
		warnings = append(warnings, warn...)
		if ok {
			nodes = append(nodes, n)
		}
	}

	edges := make([]model.Edge, 0, len(doc.Edges))
	for _, ye := range doc.Edges {
		edges = append(edges, fromYAMLEdge(ye))
	}

	status := model.StatusDraft
	if doc.Status != "" {
		status = model.WorkflowStatus(doc.Status)
	}

	w := model.Reconstruct(
		model.WorkflowID(doc.ID), doc.Name, doc.Description, doc.Version, status,
		triggerTypes, nodes, edges, variables, doc.BotID, doc.Tags, doc.Category,
		doc.Metadata, time.Time{}, time.Time{},
	)
	return w, warnings
}

func fromYAMLNode(yn yamlNode) (model.Node, []string, bool) {
	var warnings []string
	nodeType := model.NodeType(yn.Type)
	common := model.NodeCommon{
		TimeoutSeconds: yn.TimeoutSecs,
		Retry:          yn.Retry,
		ErrorHandler:   model.ErrorHandler(yn.ErrorHandler),
	}

	config, ok := buildNodeConfig(nodeType, common, yn.Config)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unknown node type %q on node %q skipped", yn.Type, yn.ID))
		return model.Node{}, warnings, false
	}

	n := model.Node{ID: yn.ID, Type: nodeType, Name: yn.Name, Config: config}
	if yn.Position != nil {
		n.Position = &model.Position{X: yn.Position.X, Y: yn.Position.Y}
	}
	known := toYAMLNode(n).Config
	for k, v := range yn.Config {
		if _, ok := known[k]; !ok {
			if n.UnknownFields == nil {
				n.UnknownFields = make(map[string]interface{})
			}
			n.UnknownFields[k] = v
		}
	}
	return n, warnings, true
}

func buildNodeConfig(t model.NodeType, common model.NodeCommon, cfg map[string]interface{}) (model.NodeConfig, bool) {
	switch t {
	case model.NodeEventStart:
		return model.EventStartConfig{
			NodeCommon: common,
			TriggerType: model.TriggerType(str(cfg, "trigger_type")),
			EventFilters: mapVal(cfg, "event_filters"),
		}, true
	case model.NodeScheduleStart:
		return model.ScheduleStartConfig{
			NodeCommon:     common,
			CronExpression: str(cfg, "cron_expression"),
			Timezone:       strOr(cfg, "timezone", "UTC"),
		}, true
	case model.NodeHTTPRequest:
		return model.HTTPRequestConfig{
			NodeCommon: common,
			Method:     strOr(cfg, "method", "GET"),
			URL:        str(cfg, "url"),
			Headers:    stringMapVal(cfg, "headers"),
			Body:       str(cfg, "body"),
			Auth:       mapVal(cfg, "auth"),
		}, true
	case model.NodeJSONProcessor:
		return model.JSONProcessorConfig{
			NodeCommon: common,
			Operation:  model.JSONOperation(str(cfg, "operation")),
			Path:       str(cfg, "path"),
			Value:      cfg["value"],
		}, true
	case model.NodeReplyMessage:
		var replyTo *string
		if v, ok := cfg["reply_to"].(string); ok {
			replyTo = &v
		}
		var components []interface{}
		if v, ok := cfg["components"].([]interface{}); ok {
			components = v
		}
		return model.ReplyMessageConfig{
			NodeCommon: common,
			Content:    str(cfg, "content"),
			ReplyTo:    replyTo,
			Components: components,
		}, true
	case model.NodeSetVariable:
		value, hasValue := cfg["value"]
		return model.SetVariableConfig{
			NodeCommon:   common,
			VariableName: str(cfg, "variable_name"),
			Value:        value,
			HasValue:     hasValue,
		}, true
	case model.NodeGetVariable:
		return model.GetVariableConfig{
			NodeCommon:   common,
			VariableName: str(cfg, "variable_name"),
			Default:      cfg["default"],
		}, true
	case model.NodeCondition:
		var clauses []model.Clause
		if raw, ok := cfg["clauses"].([]interface{}); ok {
			for _, item := range raw {
				if m, ok := item.(map[string]interface{}); ok {
					clauses = append(clauses, model.Clause{
						Field:    str(m, "field"),
						Operator: model.ClauseOperator(str(m, "operator")),
						Value:    m["value"],
					})
				}
			}
		}
		return model.ConditionConfig{
			NodeCommon:    common,
			Clauses:       clauses,
			Logic:         model.BooleanLogic(str(cfg, "logic")),
			DefaultBranch: str(cfg, "default_branch"),
		}, true
	case model.NodeChatCommandBranch:
		return model.ChatCommandBranchConfig{
			NodeCommon:    common,
			CommandPrefix: strOr(cfg, "command_prefix", "/"),
		}, true
	case model.NodeToolAction:
		return model.ToolActionConfig{
			NodeCommon: common,
			ToolID:     str(cfg, "tool_id"),
			Parameters: mapVal(cfg, "parameters"),
		}, true
	case model.NodeEnd:
		return model.EndConfig{NodeCommon: common}, true
	default:
		return nil, false
	}
}

func fromYAMLEdge(ye yamlEdge) model.Edge {
	e := model.Edge{ID: ye.ID, Source: ye.Source, Target: ye.Target, Label: ye.Label}
	if ye.Condition != nil {
		e.Condition = &model.EdgeCondition{
			Type: ye.Condition.Type, Field: ye.Condition.Field,
			Operator: model.ClauseOperator(ye.Condition.Operator), Value: ye.Condition.Value,
		}
	}
	return e
}

func validTriggerType(t model.TriggerType) bool {
	switch t {
	case model.TriggerPersonMessage, model.TriggerGroupMessage, model.TriggerScheduled, model.TriggerManual, model.TriggerAPI:
		return true
	}
	return false
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func strOr(m map[string]interface{}, key, fallback string) string {
	if v := str(m, key); v != "" {
		return v
	}
	return fallback
}

func mapVal(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func stringMapVal(m map[string]interface{}, key string) map[string]string {
	raw, ok := m[key].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// NodesToRecord and EdgesToRecord/NodesFromRecord/EdgesFromRecord convert
// between []model.Node/[]model.Edge and the opaque map shape a
// repository.WorkflowRecord stores them as (§6 "nodes (map), edges (map)").
// This is the persistence boundary's own encoding, independent of the YAML
// text format above — the two are never meant to share a representation,
// since the serializer's job is entity<->document and this is entity<->row.

func NodesToRecord(nodes []model.Node) map[string]interface{} {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = nodeToRecordMap(toYAMLNode(n), n.UnknownFields)
	}
	return map[string]interface{}{"items": items}
}

func EdgesToRecord(edges []model.Edge) map[string]interface{} {
	items := make([]interface{}, len(edges))
	for i, e := range edges {
		ye := toYAMLEdge(e)
		em := map[string]interface{}{"id": ye.ID, "source": ye.Source, "target": ye.Target}
		if ye.Label != nil {
			em["label"] = *ye.Label
		}
		if ye.Condition != nil {
			em["condition"] = map[string]interface{}{
				"type": ye.Condition.Type, "field": ye.Condition.Field,
				"operator": ye.Condition.Operator, "value": ye.Condition.Value,
			}
		}
		items[i] = em
	}
	return map[string]interface{}{"items": items}
}

func NodesFromRecord(rec map[string]interface{}) []model.Node {
	items, _ := rec["items"].([]interface{})
	nodes := make([]model.Node, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if n, ok := nodeFromRecordMap(m); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func EdgesFromRecord(rec map[string]interface{}) []model.Edge {
	items, _ := rec["items"].([]interface{})
	edges := make([]model.Edge, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ye := yamlEdge{ID: str(m, "id"), Source: str(m, "source"), Target: str(m, "target")}
		if label, ok := m["label"].(string); ok {
			ye.Label = &label
		}
		if condRaw, ok := m["condition"].(map[string]interface{}); ok {
			ye.Condition = &yamlEdgeCondition{
				Type: str(condRaw, "type"), Field: str(condRaw, "field"),
				Operator: str(condRaw, "operator"), Value: condRaw["value"],
			}
		}
		edges = append(edges, fromYAMLEdge(ye))
	}
	return edges
}

func nodeToRecordMap(yn yamlNode, unknown map[string]interface{}) map[string]interface{} {
	m := map[string]interface{}{"id": yn.ID, "type": yn.Type, "retry": yn.Retry}
	if yn.Name != "" {
		m["name"] = yn.Name
	}
	if yn.TimeoutSecs != nil {
		m["timeout_seconds"] = *yn.TimeoutSecs
	}
	if yn.ErrorHandler != "" {
		m["error_handler"] = yn.ErrorHandler
	}
	if yn.Position != nil {
		m["position"] = map[string]interface{}{"x": yn.Position.X, "y": yn.Position.Y}
	}
	m["config"] = yn.Config
	if len(unknown) > 0 {
		m["unknown"] = unknown
	}
	return m
}

func nodeFromRecordMap(m map[string]interface{}) (model.Node, bool) {
	yn := yamlNode{ID: str(m, "id"), Type: str(m, "type"), Name: str(m, "name"), ErrorHandler: str(m, "error_handler")}
	if v, ok := m["retry"].(int); ok {
		yn.Retry = v
	}
	if v, ok := m["timeout_seconds"].(int); ok {
		yn.TimeoutSecs = &v
	}
	if posRaw, ok := m["position"].(map[string]interface{}); ok {
		x, _ := posRaw["x"].(float64)
		y, _ := posRaw["y"].(float64)
		yn.Position = &yamlPosition{X: x, Y: y}
	}
	if cfg, ok := m["config"].(map[string]interface{}); ok {
		yn.Config = cfg
	} else {
		yn.Config = map[string]interface{}{}
	}
	n, _, ok := fromYAMLNode(yn)
	if !ok {
		return model.Node{}, false
	}
	if unknown, ok := m["unknown"].(map[string]interface{}); ok {
		n.UnknownFields = unknown
	}
	return n, true
}
