package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace derives stable Qdrant point UUIDs from record ids.
var pointNamespace = uuid.MustParse("6f1c3f0e-8a43-4f43-9a43-2f8e1d0c7b21")

type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex connects over gRPC and creates the collection if missing.
func NewQdrantIndex(ctx context.Context, host string, port int, collection string, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("create collection %s: %w", collection, err)
		}
	}

	return &QdrantIndex{client: client, collection: collection}, nil
}

func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func (q *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: qdrantPayload(r),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points to %s: %w", q.collection, err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter != nil && filter.DocumentID != "" {
		req.Filter = documentCondition(filter.DocumentID)
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.collection, err)
	}

	matches := make([]Match, len(points))
	for i, p := range points {
		id, md := fromQdrantPayload(p.GetPayload())
		matches[i] = Match{ID: id, Score: float64(p.GetScore()), Metadata: md}
	}
	return matches, nil
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: documentCondition(documentID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete points for document %s: %w", documentID, err)
	}
	return nil
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	_, err := q.client.HealthCheck(ctx)
	return err
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func documentCondition(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "document_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: documentID}},
				},
			},
		}},
	}
}

func qdrantPayload(r Record) map[string]*qdrant.Value {
	str := func(s string) *qdrant.Value { return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}} }
	num := func(n int) *qdrant.Value { return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(n)}} }

	return map[string]*qdrant.Value{
		"record_id":   str(r.ID),
		"document_id": str(r.Metadata.DocumentID),
		"filename":    str(r.Metadata.Filename),
		"page_number": num(r.Metadata.Page),
		"chunk_index": num(r.Metadata.ChunkIndex),
		"text":        str(r.Metadata.Text),
		"created_at":  str(r.Metadata.CreatedAt.UTC().Format(time.RFC3339)),
	}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) (string, Metadata) {
	raw := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			raw[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			raw[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			raw[k] = val.DoubleValue
		}
	}
	id, _ := raw["record_id"].(string)
	return id, metadataFromMap(raw)
}
