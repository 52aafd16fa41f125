package graph

import (
	"context"
	"fmt"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Store is GraphPersistence: transactional purge-then-insert writes and
// project-scoped reads over a Neo4j-backed concept graph, grounded on the
// teacher's SaveBatch/collectComponents pattern.
type Store struct {
	driver neo4j.DriverWithContext
	nodes  *repo.Neo4jRepo[domain.GraphNode, string]
}

// New creates a Store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{
		driver: driver,
		nodes:  repo.NewNeo4jRepo[domain.GraphNode, string](driver, "Concept", nodeToMap, nodeFromRecord),
	}
}

// Get returns a single GraphNode by its internal id.
func (s *Store) Get(ctx context.Context, id string) (domain.GraphNode, error) {
	n, err := s.nodes.Get(ctx, id)
	if err != nil {
		return domain.GraphNode{}, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return n, nil
}

// ListByProject returns every GraphNode for a project, per the
// (project_id) -> list<GraphNode> read contract.
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]domain.GraphNode, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Concept {project_id: $project_id}) RETURN n ORDER BY n.concept_id`,
		map[string]any{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// Save purges all existing nodes for a project and bulk-inserts the new
// set in a single transaction. On failure the transaction rolls back and
// the prior graph is left untouched.
func (s *Store) Save(ctx context.Context, projectID string, g *domain.Graph) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (n:Concept {project_id: $project_id}) DETACH DELETE n`,
			map[string]any{"project_id": projectID}); err != nil {
			return nil, fmt.Errorf("purge existing nodes: %w", err)
		}

		for _, n := range g.Sorted() {
			n.ProjectID = projectID
			cypher := `MERGE (n:Concept {project_id: $project_id, concept_id: $concept_id}) SET n += $props`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"project_id": projectID,
				"concept_id": n.ConceptID,
				"props":      nodeToMap(*n),
			}); err != nil {
				return nil, fmt.Errorf("insert node %s: %w", n.ConceptID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("save graph for project %s: %w", projectID, err)
	}
	return nil
}

// CountByProject returns the total number of GraphNodes for a project, used
// by ExportProcessor to compute batch progress.
func (s *Store) CountByProject(ctx context.Context, projectID string) (int, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n:Concept {project_id: $project_id}) RETURN count(n) AS c`,
		map[string]any{"project_id": projectID})
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	count, _, err := neo4j.GetRecordValue[int64](record, "c")
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ListMissingContent returns up to limit nodes in a project whose content is
// still empty, ordered deterministically so repeated ExportProcessor
// invocations make steady progress instead of re-picking the same nodes.
func (s *Store) ListMissingContent(ctx context.Context, projectID string, limit int) ([]domain.GraphNode, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `
		MATCH (n:Concept {project_id: $project_id})
		WHERE n.content IS NULL OR n.content = ""
		RETURN n ORDER BY n.concept_id LIMIT $limit`,
		map[string]any{"project_id": projectID, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return collectNodes(ctx, result)
}

// SetContent writes the generated note body for one node.
func (s *Store) SetContent(ctx context.Context, projectID, conceptID, content string) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx, `
		MATCH (n:Concept {project_id: $project_id, concept_id: $concept_id})
		SET n.content = $content`,
		map[string]any{"project_id": projectID, "concept_id": conceptID, "content": content})
	return err
}

func nodeToMap(n domain.GraphNode) map[string]any {
	return map[string]any{
		"id":             n.ID,
		"project_id":     n.ProjectID,
		"concept_id":     n.ConceptID,
		"content":        n.Content,
		"aliases":        n.Aliases,
		"outbound_links": n.OutboundLinks,
		"inbound_links":  n.InboundLinks,
	}
}

func nodeFromRecord(rec *neo4j.Record) (domain.GraphNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.GraphNode{}, err
	}
	return nodeFromProps(node.Props), nil
}

func nodeFromProps(props map[string]any) domain.GraphNode {
	return domain.GraphNode{
		ID:            strProp(props, "id"),
		ProjectID:     strProp(props, "project_id"),
		ConceptID:     strProp(props, "concept_id"),
		Content:       strProp(props, "content"),
		Aliases:       strSliceProp(props, "aliases"),
		OutboundLinks: strSliceProp(props, "outbound_links"),
		InboundLinks:  strSliceProp(props, "inbound_links"),
	}
}

func collectNodes(ctx context.Context, result neo4j.ResultWithContext) ([]domain.GraphNode, error) {
	var items []domain.GraphNode
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		items = append(items, nodeFromProps(node.Props))
	}
	return items, nil
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func strSliceProp(props map[string]any, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
