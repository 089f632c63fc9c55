package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/festa/engine/domain"
)

// DefaultCollection is the Qdrant collection holding the event catalog.
const DefaultCollection = "festivals"

const scrollPage = 256

// PointsClient is the subset of the Qdrant points API the catalog uses.
type PointsClient interface {
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// CollectionsClient is the subset of the Qdrant collections API the catalog uses.
type CollectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Qdrant keeps one point per event: the point ID is the event ID, the vector
// is the document embedding and the payload holds the raw attributes.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      PointsClient
	collections CollectionsClient
	collection  string
}

// NewQdrant dials Qdrant's gRPC API at addr.
func NewQdrant(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("catalog: dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection)
	q.conn = conn
	return q, nil
}

// NewQdrantWithClients builds a Qdrant catalog over existing clients.
func NewQdrantWithClients(points PointsClient, collections CollectionsClient, collection string) *Qdrant {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Qdrant{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection, if any.
func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it doesn't exist.
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("catalog: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("catalog: create collection %s: %w", q.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection.
func (q *Qdrant) DeleteCollection(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("catalog: delete collection %s: %w", q.collection, err)
	}
	return nil
}

// ListEmbedded implements Store by scrolling the whole collection.
func (q *Qdrant) ListEmbedded(ctx context.Context) ([]domain.Event, error) {
	limit := uint32(scrollPage)
	req := &pb.ScrollPoints{
		CollectionName: q.collection,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}

	events := []domain.Event{}
	for {
		resp, err := q.points.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("catalog: scroll %s: %w", q.collection, err)
		}
		for _, p := range resp.GetResult() {
			vec := p.GetVectors().GetVector().GetData()
			if len(vec) == 0 {
				continue
			}
			events = append(events, domain.Event{
				ID:        int64(p.GetId().GetNum()),
				Attrs:     payloadAttrs(p.GetPayload()),
				Embedding: vec,
			})
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		req.Offset = next
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// SaveEmbeddings implements Writer by upserting one point per event.
func (q *Qdrant) SaveEmbeddings(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(events))
	for _, ev := range events {
		if ev.ID < 0 {
			return fmt.Errorf("catalog: event id %d: qdrant ids must be unsigned", ev.ID)
		}
		if !ev.HasEmbedding() {
			return fmt.Errorf("catalog: event %d has no embedding", ev.ID)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: uint64(ev.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: ev.Embedding},
				},
			},
			Payload: attrsPayload(ev.Attrs),
		})
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("catalog: upsert %d points: %w", len(points), err)
	}
	return nil
}

func attrsPayload(attrs map[string]string) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(attrs))
	for k, v := range attrs {
		payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return payload
}

func payloadAttrs(payload map[string]*pb.Value) map[string]string {
	attrs := make(map[string]string, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			attrs[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			attrs[k] = strconv.FormatInt(kind.IntegerValue, 10)
		case *pb.Value_DoubleValue:
			attrs[k] = strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64)
		case *pb.Value_BoolValue:
			attrs[k] = strconv.FormatBool(kind.BoolValue)
		}
	}
	return attrs
}
