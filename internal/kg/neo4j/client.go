package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/internal/kg/builder"
	"github.com/tutor-agent/backend/pkg/circuitbreaker"
	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/retry"
)

// Client renders concept graphs into Neo4j: one :Query node per pipeline run,
// :Concept nodes shared across runs, MENTIONS links carrying the phrase rank
// and NEXT links carrying the path order.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:   driver,
		database: database,
		cb: circuitbreaker.New("neo4j", circuitbreaker.Config{
			FailureThreshold: 5,
			OpenTimeout:      20 * time.Second,
			Logger:           logger.GetLogger(),
		}),
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) Render(ctx context.Context, id string, graph builder.ConceptGraph) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	nodes := make([]map[string]any, len(graph.Nodes))
	for i, name := range graph.Nodes {
		nodes[i] = map[string]any{"name": name, "rank": i}
	}
	edges := make([]map[string]any, len(graph.Edges))
	for i, e := range graph.Edges {
		edges[i] = map[string]any{"from": e.From, "to": e.To, "position": i}
	}

	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				DatabaseName: c.database,
				AccessMode:   neo4j.AccessModeWrite,
			})
			defer session.Close(ctx)

			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				return nil, writeGraph(ctx, tx, id, nodes, edges)
			})
			return err
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to render concept graph: %w", err)
	}

	logger.Debug("Concept graph stored in Neo4j",
		zap.String("query_id", id),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
	)
	return "neo4j://query/" + id, nil
}

func writeGraph(ctx context.Context, tx neo4j.ManagedTransaction, id string, nodes, edges []map[string]any) error {
	if _, err := tx.Run(ctx, `
		MERGE (q:Query {id: $query_id})
		ON CREATE SET q.created_at = timestamp()
	`, map[string]any{"query_id": id}); err != nil {
		return fmt.Errorf("failed to create query node: %w", err)
	}

	if _, err := tx.Run(ctx, `
		MATCH (q:Query {id: $query_id})
		UNWIND $nodes AS node
		MERGE (c:Concept {name: node.name})
		ON CREATE SET c.created_at = timestamp()
		SET c.last_seen = timestamp()
		MERGE (q)-[m:MENTIONS]->(c)
		SET m.rank = node.rank
	`, map[string]any{"query_id": id, "nodes": nodes}); err != nil {
		return fmt.Errorf("failed to create concept nodes: %w", err)
	}

	if len(edges) == 0 {
		return nil
	}
	if _, err := tx.Run(ctx, `
		UNWIND $edges AS edge
		MATCH (a:Concept {name: edge.from})
		MATCH (b:Concept {name: edge.to})
		MERGE (a)-[r:NEXT {query_id: $query_id}]->(b)
		SET r.position = edge.position
	`, map[string]any{"query_id": id, "edges": edges}); err != nil {
		return fmt.Errorf("failed to create concept edges: %w", err)
	}
	return nil
}
