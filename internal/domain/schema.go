package domain

import (
	"fmt"
	"regexp"
)

// Distance is the similarity metric of a collection's vector space.
type Distance string

const (
	// DistanceCosine ranks by cosine similarity.
	DistanceCosine Distance = "Cosine"
	// DistanceEuclid ranks by L2 distance.
	DistanceEuclid Distance = "Euclid"
	// DistanceDot ranks by inner product.
	DistanceDot Distance = "Dot"
)

// PayloadIndexType is the index kind applied to a payload field.
type PayloadIndexType string

const (
	// IndexKeyword indexes a field for exact-match filtering.
	IndexKeyword PayloadIndexType = "keyword"
	// IndexInteger indexes a field for numeric range filtering.
	IndexInteger PayloadIndexType = "integer"
)

// PayloadIndex binds a dot-separated payload field path to an index type.
type PayloadIndex struct {
	FieldPath string
	Type      PayloadIndexType
}

// VectorParams is the vector-space half of a collection schema, passed to the
// store at creation time. Payload indexes are created separately, after the
// collection exists.
type VectorParams struct {
	Size     int
	Distance Distance
}

// CollectionSchema is the versioned definition of a collection: its name, its
// vector space, and the payload indexes filtered queries rely on. Schemas are
// declared in code, not configuration, so a schema change is a code change
// that shows up in review.
type CollectionSchema struct {
	Name           string
	VectorSize     int
	Distance       Distance
	PayloadIndexes []PayloadIndex
}

// Params returns the creation-time vector parameters of the schema.
func (s CollectionSchema) Params() VectorParams {
	return VectorParams{Size: s.VectorSize, Distance: s.Distance}
}

var collectionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the structural invariants of the schema definition.
func (s CollectionSchema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: collection name is empty", ErrInvalidSchema)
	}
	if !collectionNameRegex.MatchString(s.Name) {
		return fmt.Errorf("%w: collection name %q contains invalid characters", ErrInvalidSchema, s.Name)
	}
	if s.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidSchema, s.VectorSize)
	}
	switch s.Distance {
	case DistanceCosine, DistanceEuclid, DistanceDot:
	default:
		return fmt.Errorf("%w: unknown distance metric %q", ErrInvalidSchema, s.Distance)
	}
	seen := make(map[string]struct{}, len(s.PayloadIndexes))
	for _, idx := range s.PayloadIndexes {
		if idx.FieldPath == "" {
			return fmt.Errorf("%w: payload index with empty field path", ErrInvalidSchema)
		}
		if _, dup := seen[idx.FieldPath]; dup {
			return fmt.Errorf("%w: duplicate payload index %q", ErrInvalidSchema, idx.FieldPath)
		}
		seen[idx.FieldPath] = struct{}{}
		switch idx.Type {
		case IndexKeyword, IndexInteger:
		default:
			return fmt.Errorf("%w: unknown index type %q for %q", ErrInvalidSchema, idx.Type, idx.FieldPath)
		}
	}
	return nil
}

// Collection and payload field paths for stored code segments. The field
// paths double as filter keys at query time, so renaming one is a breaking
// change for every stored point.
const (
	CodeSegmentsCollection = "code_segments"
	// CodeSegmentVectorSize matches the output width of text-embedding-ada-002.
	CodeSegmentVectorSize = 1536

	FieldLanguage     = "file_context.language"
	FieldFileType     = "file_context.type"
	FieldPatternTypes = "filters.pattern_types"
)

// CodeSegmentSchema returns the schema every deployment guarantees before
// accepting writes: cosine space sized for ada-002 vectors, keyword indexes
// on the three classification facets.
func CodeSegmentSchema() CollectionSchema {
	return CollectionSchema{
		Name:       CodeSegmentsCollection,
		VectorSize: CodeSegmentVectorSize,
		Distance:   DistanceCosine,
		PayloadIndexes: []PayloadIndex{
			{FieldPath: FieldLanguage, Type: IndexKeyword},
			{FieldPath: FieldFileType, Type: IndexKeyword},
			{FieldPath: FieldPatternTypes, Type: IndexKeyword},
		},
	}
}
