// Package qdrant implements index.Index on Qdrant's gRPC API.
package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/retry"
)

const (
	grpcPort = "6334"
	restPort = "6333"
)

// PointsAPI is the subset of pb.PointsClient used by Index.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	SetPayload(ctx context.Context, in *pb.SetPayloadPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used by Index.
type CollectionsAPI interface {
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
}

// HealthAPI is the subset of pb.QdrantClient used by Ping.
type HealthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Config holds connection and collection settings.
type Config struct {
	// Target is host:port or a URL. An https URL enables TLS; the REST port
	// 6333 is mapped to the gRPC port 6334.
	Target string

	APIKey string
	TLS    bool

	Collection string
	Dimensions uint

	Retry retry.Policy
}

// Index is safe for concurrent use.
type Index struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	health      HealthAPI

	collection string
	dims       int
	retry      retry.Policy
	logger     *slog.Logger
}

var _ index.Index = (*Index)(nil)

// New dials Qdrant and makes sure the collection and its payload indexes exist.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Index, error) {
	addr, useTLS, err := ParseTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	useTLS = useTLS || cfg.TLS

	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialing qdrant %s: %w", addr, err)
	}

	idx, err := NewWithClients(ctx, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), pb.NewQdrantClient(conn), cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	idx.conn = conn

	logger.Info("qdrant index ready", "target", addr, "tls", useTLS, "collection", cfg.Collection)
	return idx, nil
}

// NewWithClients builds an Index on existing clients and ensures the
// collection.
func NewWithClients(ctx context.Context, points PointsAPI, collections CollectionsAPI, health HealthAPI, cfg Config, logger *slog.Logger) (*Index, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection name is required")
	}
	if cfg.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Default
	}

	idx := &Index{
		points:      points,
		collections: collections,
		health:      health,
		collection:  cfg.Collection,
		dims:        int(cfg.Dimensions),
		retry:       cfg.Retry,
		logger:      logger,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ParseTarget turns a configured target into a gRPC address.
func ParseTarget(target string) (addr string, useTLS bool, err error) {
	if target == "" {
		return "", false, errors.New("qdrant target is required")
	}

	host, port := "", ""
	if u, perr := url.Parse(target); perr == nil && u.Scheme != "" && u.Host != "" {
		switch u.Scheme {
		case "https":
			useTLS = true
		case "http", "grpc":
		default:
			return "", false, fmt.Errorf("unsupported qdrant target scheme %q", u.Scheme)
		}
		host, port = u.Hostname(), u.Port()
	} else if h, p, serr := net.SplitHostPort(target); serr == nil {
		host, port = h, p
	} else {
		host = target
	}

	if port == "" || port == restPort {
		port = grpcPort
	}
	return net.JoinHostPort(host, port), useTLS, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (q *Index) ensureCollection(ctx context.Context) error {
	exists, err := retry.Value(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) (bool, error) {
		resp, err := q.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: q.collection})
		if err != nil {
			return false, classify("checking collection", err)
		}
		return resp.GetResult().GetExists(), nil
	})
	if err != nil {
		return err
	}

	if !exists {
		err := retry.Do(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) error {
			_, err := q.collections.Create(ctx, &pb.CreateCollection{
				CollectionName: q.collection,
				VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
					Size:     uint64(q.dims),
					Distance: pb.Distance_Cosine,
				}),
			})
			return classify("creating collection "+q.collection, err)
		})
		if err != nil {
			return err
		}
		q.logger.Info("created qdrant collection", "collection", q.collection, "dimensions", q.dims)
	}

	for field, ft := range map[string]pb.FieldType{
		index.FieldFilename: pb.FieldType_FieldTypeKeyword,
		index.FieldDelta:    pb.FieldType_FieldTypeInteger,
	} {
		err := retry.Do(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) error {
			_, err := q.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
				CollectionName: q.collection,
				Wait:           pb.PtrOf(true),
				FieldName:      field,
				FieldType:      pb.PtrOf(ft),
			})
			return classify("creating payload index "+field, err)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *Index) Exists(ctx context.Context, key string) (bool, error) {
	res, err := q.scrollByFilename(ctx, key, false)
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

func (q *Index) FindByFilename(ctx context.Context, key string) (*index.Point, error) {
	res, err := q.scrollByFilename(ctx, key, true)
	if err != nil || len(res) == 0 {
		return nil, err
	}
	p := res[0]
	return &index.Point{
		ID:      p.GetId().GetUuid(),
		Vector:  vectorOf(p.GetVectors()),
		Payload: payloadFrom(p.GetPayload()),
	}, nil
}

func (q *Index) scrollByFilename(ctx context.Context, key string, withData bool) ([]*pb.RetrievedPoint, error) {
	return retry.Value(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) ([]*pb.RetrievedPoint, error) {
		resp, err := q.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.collection,
			Filter:         &pb.Filter{Must: []*pb.Condition{pb.NewMatchKeyword(index.FieldFilename, key)}},
			Limit:          pb.PtrOf(uint32(1)),
			WithPayload:    pb.NewWithPayload(withData),
			WithVectors:    pb.NewWithVectors(withData),
		})
		if err != nil {
			return nil, classify("looking up "+key, err)
		}
		return resp.GetResult(), nil
	})
}

func (q *Index) Upsert(ctx context.Context, points ...index.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := index.CheckDimensions(q.dims, points...); err != nil {
		return err
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &pb.PointStruct{
			Id:      pb.NewIDUUID(p.ID),
			Vectors: pb.NewVectorsDense(p.Vector),
			Payload: payloadTo(p.Payload),
		}
	}

	err := retry.Do(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) error {
		_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: q.collection,
			Wait:           pb.PtrOf(true),
			Points:         structs,
		})
		return classify(fmt.Sprintf("upserting %d points", len(structs)), err)
	})
	if err != nil {
		return err
	}

	q.logger.Debug("upserted points", "count", len(structs))
	return nil
}

// maxTieSpill bounds how far past the requested window Search reads to
// collect a run of equal scores.
const maxTieSpill = 1000

// Search orders hits by (score desc, id asc) across page boundaries. Qdrant
// breaks score ties arbitrarily, so the window is cut locally from a prefix
// read from offset zero, extended while the score at its edge is still tied
// with the last requested hit.
func (q *Index) Search(ctx context.Context, query index.Query) ([]index.Hit, error) {
	if err := index.CheckQuery(q.dims, query); err != nil {
		return nil, err
	}
	if query.Limit == 0 {
		return nil, nil
	}

	want := query.Offset + query.Limit
	n := want + 1
	var scored []*pb.ScoredPoint
	for {
		var err error
		scored, err = q.search(ctx, query, n)
		if err != nil {
			return nil, err
		}
		if len(scored) < n || scored[n-1].GetScore() != scored[want-1].GetScore() || n >= want+maxTieSpill {
			break
		}
		n = min(2*n, want+maxTieSpill)
	}

	hits := make([]index.Hit, len(scored))
	for i, s := range scored {
		hits[i] = index.Hit{
			ID:      s.GetId().GetUuid(),
			Score:   s.GetScore(),
			Payload: payloadFrom(s.GetPayload()),
		}
	}
	index.SortHits(hits)
	return index.Window(hits, query.Offset, query.Limit), nil
}

// search reads the top n points for query.
func (q *Index) search(ctx context.Context, query index.Query, n int) ([]*pb.ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query.Vector,
		Limit:          uint64(n),
		WithPayload:    pb.NewWithPayload(true),
		Filter:         filterTo(query.Filter),
	}
	return retry.Value(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) ([]*pb.ScoredPoint, error) {
		resp, err := q.points.Search(ctx, req)
		if err != nil {
			return nil, classify("searching", err)
		}
		return resp.GetResult(), nil
	})
}

func (q *Index) PatchPayload(ctx context.Context, id string, patch index.Patch) error {
	found, err := retry.Value(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) (bool, error) {
		resp, err := q.points.Get(ctx, &pb.GetPoints{
			CollectionName: q.collection,
			Ids:            []*pb.PointId{pb.NewIDUUID(id)},
			WithPayload:    pb.NewWithPayload(false),
		})
		if err != nil {
			return false, classify("getting point "+id, err)
		}
		return len(resp.GetResult()) > 0, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("point %s: %w", id, errdefs.ErrNotFound)
	}

	fields := patchTo(patch)
	if len(fields) == 0 {
		return nil
	}

	return retry.Do(ctx, q.retry, errdefs.IsTransient, func(ctx context.Context) error {
		_, err := q.points.SetPayload(ctx, &pb.SetPayloadPoints{
			CollectionName: q.collection,
			Wait:           pb.PtrOf(true),
			Payload:        fields,
			PointsSelector: pb.NewPointsSelector(pb.NewIDUUID(id)),
		})
		return classify("patching point "+id, err)
	})
}

func (q *Index) Ping(ctx context.Context) error {
	if _, err := q.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return classify("health check", err)
	}
	return nil
}

func (q *Index) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// classify wraps transient gRPC failures with errdefs.ErrIndexUnavailable.
// It returns nil for a nil err.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("qdrant %s: %w: %w", op, errdefs.ErrIndexUnavailable, err)
	case codes.InvalidArgument:
		return fmt.Errorf("qdrant %s: %w: %w", op, errdefs.ErrValidation, err)
	default:
		return fmt.Errorf("qdrant %s: %w", op, err)
	}
}
