package graphmirror

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/HMarcusWH/company-truth-weave-sub000/internal/domain/ingest"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// Mirror projects stored entities and facts into Neo4j after the relational
// write succeeds. Strictly best-effort: a projection failure is logged and
// never reaches the pipeline's run status.
type Mirror struct {
	log    *logger.Logger
	client *Client
}

func NewMirror(log *logger.Logger, client *Client) *Mirror {
	return &Mirror{log: log.With("service", "GraphMirror"), client: client}
}

// Enabled reports whether a Neo4j client is configured.
func (m *Mirror) Enabled() bool { return m != nil && m.client != nil && m.client.Driver != nil }

func (m *Mirror) Project(ctx context.Context, entities []*types.Entity, facts []*types.Fact) {
	if !m.Enabled() || (len(entities) == 0 && len(facts) == 0) {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)

	entityNodes := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		entityNodes = append(entityNodes, map[string]any{
			"id":        e.ID.String(),
			"name":      e.Name,
			"type":      e.Type,
			"synced_at": now,
		})
	}

	factEdges := make([]map[string]any, 0, len(facts))
	for _, f := range facts {
		factEdges = append(factEdges, map[string]any{
			"id":         f.ID.String(),
			"subject":    f.Subject,
			"predicate":  f.Predicate,
			"object":     f.Object,
			"confidence": f.Confidence,
			"status":     f.Status,
			"doc_id":     f.EvidenceDocID.String(),
			"synced_at":  now,
		})
	}

	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT twv_entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
			`CREATE CONSTRAINT twv_subject_name_unique IF NOT EXISTS FOR (s:Subject) REQUIRE s.name IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				m.log.Warn("neo4j schema init failed (continuing)", "error", err)
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(entityNodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $entities AS e
MERGE (n:Entity {id: e.id})
SET n += e
`, map[string]any{"entities": entityNodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(factEdges) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $facts AS f
MERGE (s:Subject {name: f.subject})
MERGE (o:Subject {name: f.object})
MERGE (s)-[r:CLAIMS {id: f.id}]->(o)
SET r.predicate = f.predicate,
    r.confidence = f.confidence,
    r.status = f.status,
    r.doc_id = f.doc_id,
    r.synced_at = f.synced_at
`, map[string]any{"facts": factEdges})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		m.log.Warn("graph projection failed", "entities", len(entityNodes), "facts", len(factEdges), "error", err)
		return
	}
	m.log.Debug("graph projection synced", "entities", len(entityNodes), "facts", len(factEdges))
}
