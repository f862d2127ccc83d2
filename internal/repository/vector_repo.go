package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/sherlock-kb/sherlock/internal/apperr"
	"github.com/sherlock-kb/sherlock/internal/domain"
)

// VectorConnectionConfig holds configuration for the Qdrant connection.
type VectorConnectionConfig struct {
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

// VectorRepository handles embedding storage and similarity search in Qdrant.
type VectorRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewVectorRepository creates a new VectorRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewVectorRepository(cfg *VectorConnectionConfig) (*VectorRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = domain.EmbeddingDimensions
	}

	var opts []grpc.DialOption

	// TLS is enabled if an API key is set or UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to qdrant",
			goerr.T(apperr.TagTransient), goerr.V("addr", addr))
	}

	return &VectorRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *VectorRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist
func (r *VectorRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return goerr.New("collection has wrong vector size",
					goerr.T(apperr.TagConfig),
					goerr.V("collection", r.collectionName),
					goerr.V("size", size),
					goerr.V("expected", r.vectorDimension))
			}
		}
		return nil // Collection exists
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create collection",
			goerr.T(apperr.TagTransient), goerr.V("collection", r.collectionName))
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// KnowledgePayload is the payload stored with each vector point.
type KnowledgePayload struct {
	KnowledgeID string `json:"knowledge_id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Topic       string `json:"topic"`
	Title       string `json:"title"`
}

// Upsert inserts or updates a vector with payload
func (r *VectorRepository) Upsert(ctx context.Context, pointID string, vector []float32, payload *KnowledgePayload) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return goerr.Wrap(err, "invalid point ID",
			goerr.T(apperr.TagValidation), goerr.V("point_id", pointID))
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: uid.String(),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: vector,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"knowledge_id": {Kind: &pb.Value_StringValue{StringValue: payload.KnowledgeID}},
				"category":     {Kind: &pb.Value_StringValue{StringValue: payload.Category}},
				"subcategory":  {Kind: &pb.Value_StringValue{StringValue: payload.Subcategory}},
				"topic":        {Kind: &pb.Value_StringValue{StringValue: payload.Topic}},
				"title":        {Kind: &pb.Value_StringValue{StringValue: payload.Title}},
			},
		},
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert point",
			goerr.T(apperr.TagTransient), goerr.V("point_id", pointID))
	}

	return nil
}

// VectorSearchResult represents one scored point returned by Qdrant.
type VectorSearchResult struct {
	ID      string
	Score   float32
	Payload *KnowledgePayload
}

// Search performs a vector similarity search. A zero threshold disables score
// filtering; filters may be nil.
func (r *VectorRepository) Search(ctx context.Context, vector []float32, topK int, threshold float32, filters *domain.SearchFilters) ([]VectorSearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if threshold > 0 {
		req.ScoreThreshold = &threshold
	}

	if filters != nil {
		req.Filter = buildFilter(filters)
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search points", goerr.T(apperr.TagTransient))
	}

	results := make([]VectorSearchResult, len(resp.Result))
	for i, scored := range resp.Result {
		results[i] = VectorSearchResult{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}

	return results, nil
}

func buildFilter(filters *domain.SearchFilters) *pb.Filter {
	var conditions []*pb.Condition

	addKeyword := func(key, value string) {
		if value == "" {
			return
		}
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: key,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: value},
					},
				},
			},
		})
	}

	addKeyword("category", filters.Category)
	addKeyword("subcategory", filters.Subcategory)
	addKeyword("topic", filters.Topic)

	if len(conditions) == 0 {
		return nil
	}

	return &pb.Filter{
		Must: conditions,
	}
}

func parsePayload(payload map[string]*pb.Value) *KnowledgePayload {
	if payload == nil {
		return nil
	}

	p := &KnowledgePayload{}
	if v, ok := payload["knowledge_id"]; ok {
		p.KnowledgeID = v.GetStringValue()
	}
	if v, ok := payload["category"]; ok {
		p.Category = v.GetStringValue()
	}
	if v, ok := payload["subcategory"]; ok {
		p.Subcategory = v.GetStringValue()
	}
	if v, ok := payload["topic"]; ok {
		p.Topic = v.GetStringValue()
	}
	if v, ok := payload["title"]; ok {
		p.Title = v.GetStringValue()
	}

	return p
}

// Delete deletes a point by ID. Deleting a point that does not exist is not
// an error.
func (r *VectorRepository) Delete(ctx context.Context, pointID string) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return goerr.Wrap(err, "invalid point ID",
			goerr.T(apperr.TagValidation), goerr.V("point_id", pointID))
	}

	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete point",
			goerr.T(apperr.TagTransient), goerr.V("point_id", pointID))
	}

	return nil
}
