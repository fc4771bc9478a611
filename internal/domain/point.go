package domain

// Point is a single addressable vector with its payload document. The id is
// the point's whole identity: upserting an existing id replaces vector and
// payload wholesale, it never merges.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}
