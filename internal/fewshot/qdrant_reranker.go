package fewshot

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/clinicalpipe/annotator/internal/apperr"
	"github.com/clinicalpipe/annotator/internal/model"
)

// QdrantReranker is the optional vector-backed Reranker collaborator named
// in spec.md 4.C ("a FAISS-based reranker is an optional collaborator
// behind the same interface"). It substitutes a Qdrant collection for
// FAISS, since the only vector-database client present anywhere in the
// corpus is `github.com/qdrant/go-client` — adapted from
// planner/services/qdrant_client.go's collection lifecycle.
type QdrantReranker struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
	embed          func(text string) []float32
}

// NewQdrantReranker dials a Qdrant instance and ensures the example
// collection exists, creating it with a cosine-distance vector space sized
// to whatever embed() produces.
func NewQdrantReranker(ctx context.Context, host string, port int, collection string, embed func(text string) []float32) (*QdrantReranker, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to create qdrant client", err)
	}

	probe := embed("")
	size := uint64(len(probe))
	if size == 0 {
		size = 384
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to check qdrant collection", err)
	}
	if !exists {
		cfg := &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		}
		if err := client.CreateCollection(ctx, cfg); err != nil {
			return nil, apperr.Wrap(apperr.Unavailable, "failed to create qdrant collection", err)
		}
	}

	return &QdrantReranker{client: client, collectionName: collection, vectorSize: size, embed: embed}, nil
}

// Index upserts a prompt type's examples as vector points keyed by a
// deterministic hash of the prompt type and each example's position, so
// re-indexing the same list is idempotent.
func (r *QdrantReranker) Index(ctx context.Context, promptType string, examples []model.FewShotExample) error {
	if len(examples) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(examples))
	for i, ex := range examples {
		vec := r.embed(ex.NoteText)
		points = append(points, &qdrant.PointStruct{
			Id:     qdrant.NewID(pointID(promptType, i)),
			Vectors: qdrant.NewVectors(vec...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"prompt_type": promptType,
				"note_text":   ex.NoteText,
				"annotation":  ex.GoldAnnotation,
			}),
		})
	}
	wait := true
	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to upsert few-shot vectors", err)
	}
	return nil
}

// Rerank queries Qdrant for the k examples most similar to query, filtered
// to the given prompt type. Falls back to the unranked prefix if the query
// fails, so a reranker outage never blocks annotation.
func (r *QdrantReranker) Rerank(ctx context.Context, promptType, query string, examples []model.FewShotExample, k int) ([]model.FewShotExample, error) {
	if len(examples) == 0 || k <= 0 {
		return nil, nil
	}

	vec := r.embed(query)
	limit := uint64(k)
	result, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collectionName,
		Query:          qdrant.NewQuery(vec...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword("prompt_type", promptType)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		if k >= len(examples) {
			return examples, nil
		}
		return examples[:k], nil
	}

	out := make([]model.FewShotExample, 0, len(result))
	for _, point := range result {
		note, _ := point.Payload["note_text"]
		ann, _ := point.Payload["annotation"]
		out = append(out, model.FewShotExample{
			NoteText:       valueToString(note),
			GoldAnnotation: valueToString(ann),
		})
	}
	if len(out) == 0 {
		if k >= len(examples) {
			return examples, nil
		}
		return examples[:k], nil
	}
	return out, nil
}

func valueToString(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
		return s.StringValue
	}
	return v.String()
}

func pointID(promptType string, index int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s:%d", promptType, index)))
	return fmt.Sprintf("%x", h)
}
