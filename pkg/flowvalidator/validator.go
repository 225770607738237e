// Package flowvalidator statically checks flow definitions before they are published.
package flowvalidator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/chatflow/pkg/conditions"
	"github.com/dukex/chatflow/pkg/models"
)

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding codes.
const (
	CodeNoNodes            = "no_nodes"
	CodeNoEntryNode        = "no_entry_node"
	CodeAmbiguousEntry     = "ambiguous_entry_node"
	CodeDanglingEdge       = "dangling_edge"
	CodeEmptyVariableName  = "empty_variable_name"
	CodeOrphanNode         = "orphan_node"
	CodeDuplicateNodeID    = "duplicate_node_id"
	CodeDuplicateVariable  = "duplicate_variable"
	CodeUnknownNodeType    = "unknown_node_type"
	CodeInvalidNodeData    = "invalid_node_data"
	CodeMissingBranch      = "missing_branch"
	CodeInvalidVariable    = "invalid_variable"
	CodeInvalidExpression  = "invalid_expression"
	CodeUnknownOperator    = "unknown_operator"
	CodeUndeclaredVariable = "undeclared_variable"
	CodeUnknownRouteTarget = "unknown_route_target"
)

// ValidationError is a single finding. Warnings never make a flow invalid.
type ValidationError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	NodeID   string   `json:"nodeId,omitempty"`
	EdgeID   string   `json:"edgeId,omitempty"`
	Severity Severity `json:"severity"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// Warnings returns only the warning-class findings.
func (r Result) Warnings() []ValidationError {
	var out []ValidationError

	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}

	return out
}

// Summary joins the error-class messages into one line.
func (r Result) Summary() string {
	var msgs []string

	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			msgs = append(msgs, e.Message)
		}
	}

	return strings.Join(msgs, "; ")
}

type collector struct {
	findings []ValidationError
}

func (c *collector) errorf(code, nodeID, format string, args ...any) {
	c.findings = append(c.findings, ValidationError{
		Code:     code,
		NodeID:   nodeID,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
}

func (c *collector) warnf(code, nodeID, format string, args ...any) {
	c.findings = append(c.findings, ValidationError{
		Code:     code,
		NodeID:   nodeID,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

// Validate checks the flow and accumulates every finding. It has no side
// effects; a flow may be published only when Result.Valid is true.
func Validate(flow *models.Flow) Result {
	c := &collector{}

	if flow == nil {
		c.errorf(CodeNoNodes, "", "flow must have at least one node")

		return c.result()
	}

	flow = withoutNil(c, flow)
	if len(flow.Nodes) == 0 {
		c.errorf(CodeNoNodes, "", "flow must have at least one node")

		return c.result()
	}

	entry := checkEntry(c, flow)
	checkEdges(c, flow)
	checkVariables(c, flow)
	checkOrphans(c, flow, entry)
	checkNodes(c, flow)

	return c.result()
}

// withoutNil reports null node and edge entries and returns a shallow copy
// of flow without them, so the remaining checks never see a nil element.
func withoutNil(c *collector, flow *models.Flow) *models.Flow {
	clean := *flow
	clean.Nodes = make([]*models.Node, 0, len(flow.Nodes))
	clean.Edges = make([]*models.Edge, 0, len(flow.Edges))

	for i, node := range flow.Nodes {
		if node == nil {
			c.errorf(CodeInvalidNodeData, "", "node at position %d is null", i)

			continue
		}

		clean.Nodes = append(clean.Nodes, node)
	}

	for i, edge := range flow.Edges {
		if edge == nil {
			c.errorf(CodeInvalidNodeData, "", "edge at position %d is null", i)

			continue
		}

		clean.Edges = append(clean.Edges, edge)
	}

	return &clean
}

func (c *collector) result() Result {
	valid := true

	for _, f := range c.findings {
		if f.Severity == SeverityError {
			valid = false

			break
		}
	}

	return Result{Valid: valid, Errors: c.findings}
}

func checkEntry(c *collector, flow *models.Flow) *models.Node {
	if flagged := flow.EntryCandidates(); len(flagged) > 1 {
		ids := make([]string, 0, len(flagged))
		for _, n := range flagged {
			ids = append(ids, n.ID)
		}

		c.errorf(CodeAmbiguousEntry, "", "more than one node is flagged as entry: %s", strings.Join(ids, ", "))

		return nil
	}

	entry, ok := flow.EntryNode()
	if !ok {
		c.errorf(CodeNoEntryNode, "", "flow has no determinable entry node")

		return nil
	}

	return entry
}

func checkEdges(c *collector, flow *models.Flow) {
	for _, edge := range flow.Edges {
		if flow.NodeByID(edge.Source) == nil {
			c.findings = append(c.findings, ValidationError{
				Code:     CodeDanglingEdge,
				EdgeID:   edge.ID,
				Message:  fmt.Sprintf("edge %s references missing source node %q", edge.ID, edge.Source),
				Severity: SeverityError,
			})
		}

		if flow.NodeByID(edge.Target) == nil {
			c.findings = append(c.findings, ValidationError{
				Code:     CodeDanglingEdge,
				EdgeID:   edge.ID,
				Message:  fmt.Sprintf("edge %s references missing target node %q", edge.ID, edge.Target),
				Severity: SeverityError,
			})
		}
	}
}

func checkVariables(c *collector, flow *models.Flow) {
	seen := make(map[string]bool, len(flow.Variables))

	for i, v := range flow.Variables {
		if strings.TrimSpace(v.Name) == "" {
			c.errorf(CodeEmptyVariableName, "", "variable at position %d has an empty name", i)

			continue
		}

		if seen[v.Name] {
			c.errorf(CodeDuplicateVariable, "", "variable %q is declared more than once", v.Name)
		}

		seen[v.Name] = true

		if !v.Type.IsValid() {
			c.errorf(CodeInvalidVariable, "", "variable %q has unknown type %q", v.Name, v.Type)
		}

		if v.Validation != nil && v.Validation.Regex != "" {
			if _, err := regexp.Compile(v.Validation.Regex); err != nil {
				c.errorf(CodeInvalidVariable, "", "variable %q has an invalid regex: %v", v.Name, err)
			}
		}

		if v.Validation != nil && v.Validation.Min != nil && v.Validation.Max != nil && *v.Validation.Min > *v.Validation.Max {
			c.errorf(CodeInvalidVariable, "", "variable %q has min greater than max", v.Name)
		}
	}
}

func checkOrphans(c *collector, flow *models.Flow, entry *models.Node) {
	routed := routeTargets(flow)

	for _, node := range flow.Nodes {
		if entry != nil && node.ID == entry.ID {
			continue
		}

		if !flow.HasIncomingEdge(node.ID) && !routed[node.ID] {
			c.warnf(CodeOrphanNode, node.ID, "node %s has no incoming edge and is unreachable", node.ID)
		}
	}
}

func checkNodes(c *collector, flow *models.Flow) {
	ids := make(map[string]bool, len(flow.Nodes))

	for _, node := range flow.Nodes {
		if ids[node.ID] {
			c.errorf(CodeDuplicateNodeID, node.ID, "node id %s is used more than once", node.ID)
		}

		ids[node.ID] = true

		if !node.Type.IsValid() {
			c.errorf(CodeUnknownNodeType, node.ID, "node %s has unknown type %q", node.ID, node.Type)

			continue
		}

		for _, msg := range validateNodeData(node) {
			c.errorf(CodeInvalidNodeData, node.ID, "node %s: %s", node.ID, msg)
		}

		switch node.Type {
		case models.NodeTypeCondition:
			checkCondition(c, flow, node)
		case models.NodeTypeInput:
			checkInput(c, flow, node)
		case models.NodeTypeIntegration:
			checkIntegration(c, flow, node)
		case models.NodeTypeText, models.NodeTypeButtons, models.NodeTypeImage,
			models.NodeTypeVideo, models.NodeTypeWebhook:
		}
	}
}

func checkCondition(c *collector, flow *models.Flow, node *models.Node) {
	var data models.ConditionData
	if err := models.DecodeData(node, &data); err != nil {
		c.errorf(CodeInvalidNodeData, node.ID, "%v", err)

		return
	}

	for _, clause := range data.Conditions {
		if !conditions.IsKnownOperator(clause.Operator) {
			c.errorf(CodeUnknownOperator, node.ID, "node %s uses unknown operator %q", node.ID, clause.Operator)
		}
	}

	if data.Expression != "" {
		if err := conditions.CompileExpression(data.Expression); err != nil {
			c.errorf(CodeInvalidExpression, node.ID, "node %s has an invalid expression: %v", node.ID, err)
		}
	}

	var hasTrue, hasFalse bool

	for _, edge := range flow.OutgoingEdges(node.ID) {
		switch edge.Label {
		case models.EdgeLabelTrue:
			hasTrue = true
		case models.EdgeLabelFalse:
			hasFalse = true
		}
	}

	if !hasTrue {
		c.warnf(CodeMissingBranch, node.ID, "condition node %s has no %q edge", node.ID, models.EdgeLabelTrue)
	}

	if !hasFalse {
		c.warnf(CodeMissingBranch, node.ID, "condition node %s has no %q edge", node.ID, models.EdgeLabelFalse)
	}
}

func checkInput(c *collector, flow *models.Flow, node *models.Node) {
	var data models.InputData
	if err := models.DecodeData(node, &data); err != nil {
		c.errorf(CodeInvalidNodeData, node.ID, "%v", err)

		return
	}

	if len(flow.Variables) == 0 || data.Variable == "" {
		return
	}

	if _, ok := flow.Variable(data.Variable); !ok {
		c.warnf(CodeUndeclaredVariable, node.ID, "input node %s stores undeclared variable %q", node.ID, data.Variable)
	}
}

func checkIntegration(c *collector, flow *models.Flow, node *models.Node) {
	var data models.IntegrationData
	if err := models.DecodeData(node, &data); err != nil {
		c.errorf(CodeInvalidNodeData, node.ID, "%v", err)

		return
	}

	for _, rule := range data.Routing {
		if rule.Operator != "" && !conditions.IsKnownOperator(rule.Operator) {
			c.errorf(CodeUnknownOperator, node.ID, "node %s routes with unknown operator %q", node.ID, rule.Operator)
		}

		if flow.NodeByID(rule.Target) == nil {
			c.errorf(CodeUnknownRouteTarget, node.ID, "node %s routes to unknown node %q", node.ID, rule.Target)
		}
	}
}

// routeTargets lists nodes reachable through integration routing rules.
func routeTargets(flow *models.Flow) map[string]bool {
	targets := make(map[string]bool)

	for _, node := range flow.Nodes {
		if node.Type != models.NodeTypeIntegration {
			continue
		}

		var data models.IntegrationData
		if err := models.DecodeData(node, &data); err != nil {
			continue
		}

		for _, rule := range data.Routing {
			targets[rule.Target] = true
		}
	}

	return targets
}
