package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/agentcloud/vector-db-proxy/internal/platform/ctxutil"
	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
	"github.com/agentcloud/vector-db-proxy/internal/vectorstore"
)

// GRPCStore talks to Qdrant over its gRPC API.
type GRPCStore struct {
	log         *logger.Logger
	cfg         Config
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
}

func NewGRPCStore(ctx context.Context, log *logger.Logger, cfg Config) (*GRPCStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, opErr("bootstrap_dial", OperationErrorTransportFailed, "dial qdrant grpc failed", err)
	}
	s := &GRPCStore{
		log:         log.With("service", "QdrantVectorStore", "transport", TransportGRPC),
		cfg:         cfg,
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
	}
	if _, err := qdrant.NewQdrantClient(conn).HealthCheck(s.callCtx(ctx), &qdrant.HealthCheckRequest{}); err != nil {
		_ = conn.Close()
		return nil, grpcErr("bootstrap_verify", err)
	}
	s.log.Info(
		"Qdrant vector store selected",
		"addr", cfg.GRPCAddr,
		"distance", cfg.Distance,
		"create_collections", cfg.CreateCollections,
	)
	return s, nil
}

func (s *GRPCStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCStore) callCtx(ctx context.Context) context.Context {
	ctx = ctxutil.Default(ctx)
	if s.cfg.APIKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", s.cfg.APIKey)
	}
	return ctx
}

func (s *GRPCStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	const op = "collection_exists"
	ctx, cancel := context.WithTimeout(s.callCtx(ctx), s.cfg.Timeout)
	defer cancel()
	_, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: collection})
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, grpcErr(op, err)
}

func (s *GRPCStore) CreateCollection(ctx context.Context, collection string, spec vectorstore.CollectionSpec) error {
	const op = "create_collection"
	if spec.VectorSize <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("invalid vector size %d", spec.VectorSize), nil)
	}
	ctx, cancel := context.WithTimeout(s.callCtx(ctx), s.cfg.Timeout)
	defer cancel()
	_, err := s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(spec.VectorSize),
					Distance: toGRPCDistance(spec.Distance),
				},
			},
		},
	})
	if err != nil {
		return grpcErr(op, err)
	}
	return nil
}

func (s *GRPCStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}
	structs, err := toPointStructs(points)
	if err != nil {
		return err
	}
	wait := true
	ctx, cancel := context.WithTimeout(s.callCtx(ctx), s.cfg.Timeout)
	defer cancel()
	if _, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         structs,
	}); err != nil {
		return grpcErr(op, err)
	}
	return nil
}

func toPointStructs(points []vectorstore.Point) ([]*qdrant.PointStruct, error) {
	rest, err := toRESTPoints(points)
	if err != nil {
		return nil, err
	}
	out := make([]*qdrant.PointStruct, 0, len(rest))
	for _, p := range rest {
		out = append(out, &qdrant.PointStruct{
			Id:      &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
			Payload: toPayload(p.Payload),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}}},
		})
	}
	return out, nil
}

func toPayload(in map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(in))
	for k, v := range in {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *qdrant.Value {
	switch t := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: t}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: t}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(t)}}
	case int32:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: t}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: t}}
	case map[string]any:
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: toPayload(t)}}}
	case map[string]string:
		fields := make(map[string]*qdrant.Value, len(t))
		for k, s := range t {
			fields[k] = toValue(s)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	case []any:
		values := make([]*qdrant.Value, 0, len(t))
		for _, item := range t {
			values = append(values, toValue(item))
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	case []string:
		values := make([]*qdrant.Value, 0, len(t))
		for _, item := range t {
			values = append(values, toValue(item))
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: strings.TrimSpace(fmt.Sprint(t))}}
	}
}

func toGRPCDistance(d vectorstore.Distance) qdrant.Distance {
	switch d {
	case vectorstore.DistanceDot:
		return qdrant.Distance_Dot
	case vectorstore.DistanceEuclid:
		return qdrant.Distance_Euclid
	case vectorstore.DistanceManhattan:
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func grpcErr(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return classifyHTTPCallError(op, "qdrant grpc call failed", err)
	}
	code := OperationErrorRequestFailed
	switch st.Code() {
	case codes.NotFound:
		code = OperationErrorNotFound
	case codes.DeadlineExceeded:
		code = OperationErrorTimeout
	case codes.Unavailable:
		code = OperationErrorTransportFailed
	case codes.InvalidArgument:
		code = OperationErrorValidation
	}
	return &OperationError{Code: code, Operation: op, Message: st.Message(), Cause: err}
}
