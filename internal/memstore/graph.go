package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/dgo/v230"
	"github.com/dgraph-io/dgo/v230/protos/api"
	"github.com/trinityvector/trinitymemory/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ConnectionGraph serves the typed connection edges between entries.
// Lookups treat a missing target as a soft constraint: Neighbors drops
// edges whose target no longer exists rather than erroring.
type ConnectionGraph interface {
	AddConnection(from string, conn models.Connection)
	Neighbors(id string, exists func(id string) bool) []models.Connection
	RemoveEntity(id string)
}

// memoryGraph is the default in-memory adjacency-map implementation,
// used by the CPU-bound dedup/search paths where a network round trip
// would dominate the query.
type memoryGraph struct {
	mu    sync.RWMutex
	edges map[string][]models.Connection
}

// NewMemoryGraph creates an empty in-memory connection graph.
func NewMemoryGraph() ConnectionGraph {
	return &memoryGraph{edges: make(map[string][]models.Connection)}
}

func (g *memoryGraph) AddConnection(from string, conn models.Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, existing := range g.edges[from] {
		if existing.TargetID == conn.TargetID {
			if conn.Strength > existing.Strength {
				g.edges[from][i] = conn
			}
			return
		}
	}
	g.edges[from] = append(g.edges[from], conn)
}

func (g *memoryGraph) Neighbors(id string, exists func(id string) bool) []models.Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()

	conns := g.edges[id]
	out := make([]models.Connection, 0, len(conns))
	for _, c := range conns {
		if exists == nil || exists(c.TargetID) {
			out = append(out, c)
		}
	}
	return out
}

func (g *memoryGraph) RemoveEntity(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, id)
}

// DgraphConnectionGraph is an optional Dgraph-backed store of
// connection edges, for deployments wanting native @recurse graph
// traversal over the connection fabric rather than a single hop of
// in-process neighbors. It does not implement ConnectionGraph: its
// methods take a context and return errors. Adapted from the teacher's
// DgraphSemanticStore: the entity/relationship schema is repurposed
// here for Entry connections instead of extracted knowledge-graph
// entities.
type DgraphConnectionGraph struct {
	client *dgo.Dgraph
	conn   *grpc.ClientConn
}

// NewDgraphConnectionGraph connects to a Dgraph Alpha node and installs
// the connection-edge schema.
func NewDgraphConnectionGraph(ctx context.Context, alphaURL string) (*DgraphConnectionGraph, error) {
	conn, err := grpc.Dial(alphaURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("memstore: connect to dgraph: %w", err)
	}
	client := dgo.NewDgraphClient(api.NewDgraphClient(conn))

	g := &DgraphConnectionGraph{client: client, conn: conn}
	if err := g.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("memstore: init connection graph schema: %w", err)
	}
	return g, nil
}

func (g *DgraphConnectionGraph) initSchema(ctx context.Context) error {
	schema := `
		entry.id: string @index(exact) @upsert .
		conn.type: string @index(exact) .
		conn.strength: float .
		conn.to: uid @reverse .
	`
	return g.client.Alter(ctx, &api.Operation{Schema: schema})
}

// AddConnection upserts an edge from->target via a mutation keyed on
// entry.id, creating nodes for either endpoint that doesn't exist yet.
func (g *DgraphConnectionGraph) AddConnection(ctx context.Context, from string, conn models.Connection) error {
	req := &api.Request{
		Query: fmt.Sprintf(`{
			f as var(func: eq(entry.id, %q))
			t as var(func: eq(entry.id, %q))
		}`, from, conn.TargetID),
		Mutations: []*api.Mutation{{
			SetNquads: []byte(fmt.Sprintf("uid(f) <entry.id> %q .\nuid(t) <entry.id> %q .\nuid(f) <conn.to> uid(t) .",
				from, conn.TargetID)),
		}},
		CommitNow: true,
	}
	txn := g.client.NewTxn()
	defer txn.Discard(ctx)
	_, err := txn.Do(ctx, req)
	return err
}

// Traverse performs a @recurse traversal from id out to depth hops,
// returning the entry ids reached.
func (g *DgraphConnectionGraph) Traverse(ctx context.Context, id string, depth int) ([]string, error) {
	q := fmt.Sprintf(`{
		traverse(func: eq(entry.id, %q)) @recurse(depth: %d) {
			entry.id
			conn.to
		}
	}`, id, depth)

	txn := g.client.NewReadOnlyTxn()
	defer txn.Discard(ctx)

	resp, err := txn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("memstore: traverse connection graph: %w", err)
	}

	type node struct {
		ID string `json:"entry.id"`
		To []node `json:"conn.to"`
	}
	var result struct {
		Traverse []node `json:"traverse"`
	}
	if err := json.Unmarshal(resp.Json, &result); err != nil {
		return nil, fmt.Errorf("memstore: parse traversal response: %w", err)
	}

	var ids []string
	var walk func(nodes []node)
	walk = func(nodes []node) {
		for _, n := range nodes {
			ids = append(ids, n.ID)
			walk(n.To)
		}
	}
	walk(result.Traverse)
	return ids, nil
}

func (g *DgraphConnectionGraph) Close() error {
	return g.conn.Close()
}
