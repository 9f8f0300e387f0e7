package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"companion.app/relay/internal/model"
)

const (
	GraphName              = "companion"
	EntityCollection       = "entities"
	RelationshipCollection = "relationships"
)

var ErrNotInitialized = errors.New("graph database not initialized, call Setup first")

type Config struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

// ArangoGraph keeps the knowledge graph in ArangoDB: one document per
// entity and one edge per (source, type, target) relationship.
type ArangoGraph struct {
	client arangodb.Client
	db     arangodb.Database
	cfg    Config
}

func NewArango(cfg Config) (*ArangoGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	return &ArangoGraph{
		client: arangodb.NewClient(conn),
		cfg:    cfg,
	}, nil
}

// Setup creates the database, collections and named graph when missing.
func (g *ArangoGraph) Setup(ctx context.Context) error {
	if err := g.ensureDatabase(ctx); err != nil {
		return err
	}
	if err := g.ensureCollection(ctx, EntityCollection, false); err != nil {
		return err
	}
	if err := g.ensureCollection(ctx, RelationshipCollection, true); err != nil {
		return err
	}
	return g.ensureGraph(ctx)
}

func (g *ArangoGraph) ensureDatabase(ctx context.Context) error {
	exists, err := g.client.DatabaseExists(ctx, g.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}

	if !exists {
		if _, err := g.client.CreateDatabase(ctx, g.cfg.Database, nil); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created", "database", g.cfg.Database)
	}

	db, err := g.client.GetDatabase(ctx, g.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	g.db = db
	return nil
}

func (g *ArangoGraph) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := g.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}
	if exists {
		return nil
	}

	colType := arangodb.CollectionTypeDocument
	if isEdge {
		colType = arangodb.CollectionTypeEdge
	}
	if _, err := g.db.CreateCollectionV2(ctx, name, &arangodb.CreateCollectionPropertiesV2{Type: &colType}); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	slog.InfoContext(ctx, "arangodb collection created",
		"collection", name,
		"is_edge", isEdge)
	return nil
}

func (g *ArangoGraph) ensureGraph(ctx context.Context) error {
	exists, err := g.db.GraphExists(ctx, GraphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}
	if exists {
		return nil
	}

	def := &arangodb.GraphDefinition{
		Name: GraphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: RelationshipCollection, From: []string{EntityCollection}, To: []string{EntityCollection}},
		},
	}
	if _, err := g.db.CreateGraph(ctx, GraphName, def, nil); err != nil {
		return fmt.Errorf("create graph: %w", err)
	}

	slog.InfoContext(ctx, "arangodb graph created", "graph", GraphName)
	return nil
}

const upsertEntityQuery = `
	UPSERT { _key: @key }
		INSERT MERGE(@doc, { _key: @key, created_at: @now })
		UPDATE MERGE(@doc, { attributes: MERGE(OLD.attributes || {}, @doc.attributes || {}) })
	IN entities
`

// Relationship endpoints that were not listed as entities still get a
// vertex; an existing one is left untouched.
const ensureEndpointQuery = `
	UPSERT { _key: @key }
		INSERT { _key: @key, name: @name, type: @type, created_at: @now }
		UPDATE {}
	IN entities
`

const upsertEdgeQuery = `
	UPSERT { _key: @key }
		INSERT { _key: @key, _from: @from, _to: @to, type: @type, context: @context, created_at: @now, updated_at: @now }
		UPDATE { context: @context, updated_at: @now }
	IN relationships
`

// UpdateKnowledgeGraph upserts every entity, then every relationship.
// Entities are keyed by their slugified name so repeated updates converge.
func (g *ArangoGraph) UpdateKnowledgeGraph(ctx context.Context, update model.GraphUpdate) error {
	if g.db == nil {
		return ErrNotInitialized
	}
	if update.Empty() {
		return nil
	}

	start := time.Now()
	now := start.UnixMilli()
	known := make(map[string]bool, len(update.Entities))

	for _, entity := range update.Entities {
		key, err := EntityKey(entity.Name)
		if err != nil {
			return fmt.Errorf("entity %q: %w", entity.Name, err)
		}
		doc := map[string]any{
			"name":       entity.Name,
			"type":       entity.Type,
			"attributes": entity.Attributes,
		}
		if err := g.exec(ctx, upsertEntityQuery, map[string]any{"key": key, "doc": doc, "now": now}); err != nil {
			return fmt.Errorf("upsert entity %q: %w", entity.Name, err)
		}
		known[key] = true
	}

	for _, rel := range update.Relationships {
		from, err := g.ensureEndpoint(ctx, rel.Source, known, now)
		if err != nil {
			return err
		}
		to, err := g.ensureEndpoint(ctx, rel.Target, known, now)
		if err != nil {
			return err
		}

		bind := map[string]any{
			"key":     edgeKey(from, rel.Type, to),
			"from":    EntityCollection + "/" + from,
			"to":      EntityCollection + "/" + to,
			"type":    rel.Type,
			"context": rel.Context,
			"now":     now,
		}
		if err := g.exec(ctx, upsertEdgeQuery, bind); err != nil {
			return fmt.Errorf("upsert relationship %s-%s->%s: %w", rel.Source, rel.Type, rel.Target, err)
		}
	}

	slog.DebugContext(ctx, "knowledge graph updated",
		"entities", len(update.Entities),
		"relationships", len(update.Relationships),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (g *ArangoGraph) ensureEndpoint(ctx context.Context, name string, known map[string]bool, now int64) (string, error) {
	key, err := EntityKey(name)
	if err != nil {
		return "", fmt.Errorf("relationship endpoint %q: %w", name, err)
	}
	if known[key] {
		return key, nil
	}
	bind := map[string]any{"key": key, "name": name, "type": model.EntityTypePerson, "now": now}
	if err := g.exec(ctx, ensureEndpointQuery, bind); err != nil {
		return "", fmt.Errorf("ensure entity %q: %w", name, err)
	}
	known[key] = true
	return key, nil
}

// FindEntity looks an entity up by name. A missing entity is not an error.
func (g *ArangoGraph) FindEntity(ctx context.Context, name string) (*model.Entity, bool, error) {
	if g.db == nil {
		return nil, false, ErrNotInitialized
	}
	key, err := EntityKey(name)
	if err != nil {
		return nil, false, nil
	}

	cursor, err := g.db.Query(ctx, `
		FOR e IN entities
			FILTER e._key == @key
			LIMIT 1
			RETURN { name: e.name, type: e.type, attributes: e.attributes }
	`, &arangodb.QueryOptions{BindVars: map[string]any{"key": key}})
	if err != nil {
		return nil, false, fmt.Errorf("execute query: %w", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, false, nil
	}
	var entity model.Entity
	if _, err := cursor.ReadDocument(ctx, &entity); err != nil {
		return nil, false, fmt.Errorf("read document: %w", err)
	}
	return &entity, true, nil
}

func (g *ArangoGraph) exec(ctx context.Context, query string, bind map[string]any) error {
	cursor, err := g.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bind})
	if err != nil {
		return err
	}
	return cursor.Close()
}
