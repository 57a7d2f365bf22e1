package graphdb

import (
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

const defaultGraph = "@default"

// CheckNQuads parses an N-Triples or N-Quads payload and returns the number
// of statements it holds.
func CheckNQuads(payload []byte) (int, error) {
	serializer := &ld.NQuadRDFSerializer{}
	dataset, err := serializer.Parse(string(payload))
	if err != nil {
		return 0, fmt.Errorf("invalid N-Quads: %w", err)
	}
	n := 0
	for _, quads := range dataset.Graphs {
		n += len(quads)
	}
	return n, nil
}

// JSONLDToNTriples expands a JSON-LD document and serializes all of its
// statements, whatever graph they were in, as N-Triples.
func JSONLDToNTriples(doc []byte) ([]byte, int, error) {
	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, 0, fmt.Errorf("decode JSON-LD: %w", err)
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	result, err := proc.ToRDF(input, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("JSON-LD to RDF: %w", err)
	}
	dataset, ok := result.(*ld.RDFDataset)
	if !ok {
		return nil, 0, fmt.Errorf("JSON-LD to RDF: unexpected result %T", result)
	}

	flat := ld.NewRDFDataset()
	var quads []*ld.Quad
	for _, graph := range dataset.Graphs {
		for _, q := range graph {
			quads = append(quads, ld.NewQuad(q.Subject, q.Predicate, q.Object, defaultGraph))
		}
	}
	flat.Graphs[defaultGraph] = quads

	serializer := &ld.NQuadRDFSerializer{}
	serialized, err := serializer.Serialize(flat)
	if err != nil {
		return nil, 0, err
	}
	out, ok := serialized.(string)
	if !ok {
		return nil, 0, fmt.Errorf("serialize N-Triples: unexpected result %T", serialized)
	}
	return []byte(out), len(quads), nil
}
