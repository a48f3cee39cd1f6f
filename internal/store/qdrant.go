package store

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// qdrantScrollPage is the number of points fetched per scroll request.
const qdrantScrollPage = 256

// QdrantConfig holds connection parameters for a Qdrant collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection name (default: "documents").
	Collection string

	// VectorSize is the embedding dimensionality of the collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store on a Qdrant collection. Rows are points with
// numeric IDs and a {filename, content} payload; the server-side ranking is
// a cosine Query against the collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu guards lastID.
	mu sync.Mutex
	// lastID is the most recently issued point ID.
	lastID uint64
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 768
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant: create client: %w", err)
	}

	s := &QdrantStore{client: client, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("store: qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("store: qdrant: create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Point IDs are a millisecond timestamp with qdrantIDRandBits random low
// bits, so ascending IDs follow insertion order across restarts and two
// processes writing in the same millisecond rarely pick the same ID. The
// result stays below 2^53 so it survives a JSON round trip.
const (
	qdrantIDRandBits = 10
	qdrantIDAttempts = 5
)

// nextPointID returns the ID to try after last, given the current time and
// a random draw. It is strictly greater than last.
func nextPointID(last uint64, now time.Time, draw uint32) uint64 {
	id := uint64(now.UnixMilli())<<qdrantIDRandBits | uint64(draw&(1<<qdrantIDRandBits-1))
	if id <= last {
		id = last + 1
	}
	return id
}

// nextID issues a fresh point ID that no existing point holds. Upsert would
// silently overwrite a taken ID, so each candidate is looked up first. The
// lookup and the upsert are not atomic: two writers can still race on the
// same candidate within one millisecond, which the random bits make
// unlikely but not impossible. Deployments that need a hard guarantee run a
// single writer per collection.
func (s *QdrantStore) nextID(ctx context.Context) (uint64, error) {
	for range qdrantIDAttempts {
		s.mu.Lock()
		id := nextPointID(s.lastID, time.Now(), rand.Uint32())
		s.lastID = id
		s.mu.Unlock()

		found, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.cfg.Collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDNum(id)},
		})
		if err != nil {
			return 0, fmt.Errorf("check id %d: %w", id, err)
		}
		if len(found) == 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no free point id after %d attempts", qdrantIDAttempts)
}

// Insert upserts a single point and waits for it to be indexed. Qdrant
// points must carry a vector, so an empty embedding is rejected.
func (s *QdrantStore) Insert(ctx context.Context, doc NewDocument) (int64, error) {
	if len(doc.Embedding) == 0 {
		return 0, fmt.Errorf("store: qdrant insert: empty embedding for %q", doc.Filename)
	}
	id, err := s.nextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: qdrant insert: %w", err)
	}
	wait := true
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(id),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"filename": doc.Filename,
				"content":  doc.Content,
			}),
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("store: qdrant insert: %w", err)
	}
	return int64(id), nil
}

// List returns the newest limit points in ascending ID order with vectors
// attached. With a limit, the IDs are scrolled first and only the tail is
// fetched in full.
func (s *QdrantStore) List(ctx context.Context, limit int) ([]Document, error) {
	var points []*qdrant.RetrievedPoint
	if limit <= 0 {
		err := s.scroll(ctx, true, func(p *qdrant.RetrievedPoint) { points = append(points, p) })
		if err != nil {
			return nil, fmt.Errorf("store: qdrant list: %w", err)
		}
	} else {
		ids, err := s.IDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: qdrant list: %w", err)
		}
		ids = ids[max(0, len(ids)-limit):]
		if len(ids) == 0 {
			return nil, nil
		}
		pointIDs := make([]*qdrant.PointId, 0, len(ids))
		for _, id := range ids {
			pointIDs = append(pointIDs, qdrant.NewIDNum(uint64(id)))
		}
		points, err = s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.cfg.Collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("store: qdrant list: %w", err)
		}
		slices.SortFunc(points, func(a, b *qdrant.RetrievedPoint) int {
			return cmp.Compare(a.GetId().GetNum(), b.GetId().GetNum())
		})
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		d := Document{ID: int64(p.GetId().GetNum())}
		if pl := p.GetPayload(); pl != nil {
			d.Filename = pl["filename"].GetStringValue()
			d.Content = pl["content"].GetStringValue()
		}
		if data := p.GetVectors().GetVector().GetData(); len(data) > 0 {
			d.Embedding = data
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// IDs returns the ID of every point.
func (s *QdrantStore) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.scroll(ctx, false, func(p *qdrant.RetrievedPoint) {
		ids = append(ids, int64(p.GetId().GetNum()))
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant ids: %w", err)
	}
	return ids, nil
}

// Delete removes points by ID.
func (s *QdrantStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(uint64(id)))
	}
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("store: qdrant delete: %w", err)
	}
	return nil
}

// MatchDocuments runs a cosine similarity query. With Distance_Cosine the
// returned score is the cosine similarity itself.
func (s *QdrantStore) MatchDocuments(ctx context.Context, query []float32, k int) ([]Match, error) {
	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant match: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{
			ID:         int64(r.GetId().GetNum()),
			Similarity: float64(r.GetScore()),
		}
		if pl := r.GetPayload(); pl != nil {
			m.Filename = pl["filename"].GetStringValue()
			m.Content = pl["content"].GetStringValue()
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Ping calls the Qdrant health check endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: qdrant ping: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// scroll pages through the whole collection in ID order. Pages restart at
// the last seen ID + 1 since Offset is inclusive.
func (s *QdrantStore) scroll(ctx context.Context, withVectors bool, fn func(*qdrant.RetrievedPoint)) error {
	var offset *qdrant.PointId
	page := uint32(qdrantScrollPage)
	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Offset:         offset,
			Limit:          &page,
			WithPayload:    qdrant.NewWithPayload(withVectors),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return err
		}
		for _, p := range points {
			fn(p)
		}
		if len(points) < int(page) {
			return nil
		}
		offset = qdrant.NewIDNum(points[len(points)-1].GetId().GetNum() + 1)
	}
}
