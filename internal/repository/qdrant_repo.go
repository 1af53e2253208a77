package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const upsertBatchSize = 256

// examplePointNamespace seeds deterministic point IDs for reference examples.
var examplePointNamespace = uuid.MustParse("6f1c9a52-3d0e-4b7a-9c61-2f8e5d4a7b10")

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository mirrors the reference examples into a Qdrant collection and
// serves exact (non-HNSW) inner-product searches over them.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks its vector size otherwise.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	// Vectors are stored unit-normalized, so Dot equals cosine similarity.
	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if params.GetSize() > 0 {
			return params.GetSize(), true
		}
	}
	return 0, false
}

// ExamplePoint is one reference example as stored in Qdrant.
type ExamplePoint struct {
	Position int
	Text     string
	Label    string
	Vector   []float32
}

// ExampleHit is a scored example returned by SearchExact.
type ExampleHit struct {
	Position int
	Text     string
	Label    string
	Score    float32
}

// ExamplePointID derives a stable point ID from collection and example position.
func ExamplePointID(collection string, position int) string {
	return uuid.NewSHA1(examplePointNamespace, []byte(collection+"/"+strconv.Itoa(position))).String()
}

// UpsertExamples writes examples in batches; re-running with the same positions overwrites.
func (r *QdrantRepository) UpsertExamples(ctx context.Context, examples []ExamplePoint) error {
	for start := 0; start < len(examples); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(examples) {
			end = len(examples)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for _, ex := range examples[start:end] {
			if len(ex.Vector) != r.vectorDimension {
				return fmt.Errorf("example %d: vector size %d, expected %d", ex.Position, len(ex.Vector), r.vectorDimension)
			}
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: ExamplePointID(r.collectionName, ex.Position)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: ex.Vector}},
				},
				Payload: map[string]*pb.Value{
					"position": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(ex.Position)}},
					"text":     {Kind: &pb.Value_StringValue{StringValue: ex.Text}},
					"label":    {Kind: &pb.Value_StringValue{StringValue: ex.Label}},
				},
			})
		}

		wait := true
		_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: r.collectionName,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

// DeleteFromPosition removes every example at position >= size, so a smaller
// rebuild leaves no stale points behind.
func (r *QdrantRepository) DeleteFromPosition(ctx context.Context, size int) error {
	wait := true
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: pb.NewPointsSelectorFilter(&pb.Filter{
			Must: []*pb.Condition{
				pb.NewRange("position", &pb.Range{Gte: pb.PtrOf(float64(size))}),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points from position %d: %w", size, err)
	}
	return nil
}

// SearchExact runs a full-scan search (Exact=true, no HNSW approximation).
func (r *QdrantRepository) SearchExact(ctx context.Context, vector []float32, topK int) ([]ExampleHit, error) {
	exact := true
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		Params:         &pb.SearchParams{Exact: &exact},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]ExampleHit, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		payload := scored.GetPayload()
		hits[i] = ExampleHit{
			Position: int(payload["position"].GetIntegerValue()),
			Text:     payload["text"].GetStringValue(),
			Label:    payload["label"].GetStringValue(),
			Score:    scored.GetScore(),
		}
	}
	return hits, nil
}

// Count returns the number of points in the collection.
func (r *QdrantRepository) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := r.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: r.collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}
