// Package vectordb adapts the Qdrant gRPC client to the pipeline's Store
// and health probe's VectorDB collaborator interfaces.
package vectordb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kestrel-labs/codeindex/pkg/pipeline"
	"github.com/kestrel-labs/codeindex/pkg/probe"
)

// DefaultHost and DefaultPort match Qdrant's default gRPC listener.
const (
	DefaultHost = "localhost"
	DefaultPort = 6334
)

// DefaultConnectTimeout bounds how long Dial waits for the initial
// connection before giving up.
const DefaultConnectTimeout = 5 * time.Second

// Config parameterizes Dial.
type Config struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Client wraps a Qdrant gRPC connection. It satisfies pipeline.Store and
// probe.VectorDB without further adaptation.
type Client struct {
	conn   *qdrant.Client
	logger *slog.Logger
}

var (
	_ pipeline.Store = (*Client)(nil)
	_ probe.VectorDB = (*Client)(nil)
)

// Dial opens a connection to Qdrant, waiting up to cfg.ConnectTimeout for
// the handshake to complete.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("dial qdrant at %s:%d: %w", host, port, err)
	}

	if _, healthErr := conn.HealthCheck(dialCtx); healthErr != nil {
		return nil, fmt.Errorf("qdrant health check: %w", healthErr)
	}

	return &Client{conn: conn, logger: logger}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ping implements probe.VectorDB.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.conn.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}

	return nil
}

// GetCollection implements probe.VectorDB. A not-found collection is
// reported as CollectionInfo{Exists: false}, not as an error.
func (c *Client) GetCollection(ctx context.Context, name string) (probe.CollectionInfo, error) {
	info, err := c.conn.GetCollectionInfo(ctx, name)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return probe.CollectionInfo{}, nil
		}

		return probe.CollectionInfo{}, fmt.Errorf("get collection %q: %w", name, err)
	}

	var count int64
	if info.GetPointsCount() > 0 {
		count = int64(info.GetPointsCount())
	}

	return probe.CollectionInfo{
		Exists:      true,
		PointsCount: count,
		Status:      info.GetStatus().String(),
	}, nil
}

// EnsureCollection creates name with the given vector dimensionality if it
// does not already exist. It is a no-op otherwise.
func (c *Client) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	info, err := c.GetCollection(ctx, name)
	if err != nil {
		return err
	}

	if info.Exists {
		return nil
	}

	createErr := c.conn.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if createErr != nil {
		return fmt.Errorf("create collection %q: %w", name, createErr)
	}

	return nil
}

// Upsert implements pipeline.Store.
func (c *Client) Upsert(ctx context.Context, collection string, records []pipeline.UpsertRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))

	for i, rec := range records {
		payload, payloadErr := qdrant.NewValueMap(rec.Metadata)
		if payloadErr != nil {
			return fmt.Errorf("encode payload for %q: %w", rec.ID, payloadErr)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectorsDense(rec.Vector),
			Payload: payload,
		}
	}

	wait := true

	_, err := c.conn.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %q: %w", len(points), collection, err)
	}

	c.logger.Debug("upserted points", "collection", collection, "count", len(points))

	return nil
}
