package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/kpapadakis/ledgerdesk/internal/config"
)

// Intent is an opaque classification result. Labels map to agent ids in
// the router's fallback table.
type Intent struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the external intent-classification capability. Used
// only as the router's fallback step; errors mean "no intent".
type Classifier interface {
	Classify(ctx context.Context, utterance string) (Intent, error)
}

// Extractor pulls structured fields out of an utterance. Always treated
// as fallible: missing fields come back empty, never invented.
type Extractor interface {
	Extract(ctx context.Context, utterance string, schema []string) (map[string]string, error)
}

// Pipeline bundles the classifier and extractor a worker is constructed
// with. The strategy is fixed at construction; workers are never
// rewired at runtime.
type Pipeline struct {
	Classifier Classifier
	Extractor  Extractor
}

// Build selects the extraction strategy from config: pattern-only,
// model-only, or hybrid (model with pattern fallback).
func Build(cfg config.NLPConfig, apiKey string) (*Pipeline, error) {
	pattern := &Pipeline{Classifier: NewPatternClassifier(), Extractor: NewPatternExtractor()}

	switch strings.ToLower(cfg.Strategy) {
	case "", "pattern":
		return pattern, nil
	case "model":
		client := NewModelClient(cfg.ModelURL, apiKey)
		return &Pipeline{Classifier: client, Extractor: client}, nil
	case "hybrid":
		client := NewModelClient(cfg.ModelURL, apiKey)
		return &Pipeline{
			Classifier: &fallbackClassifier{primary: client, fallback: pattern.Classifier},
			Extractor:  &fallbackExtractor{primary: client, fallback: pattern.Extractor},
		}, nil
	}
	return nil, fmt.Errorf("unknown nlp strategy: %s", cfg.Strategy)
}

type fallbackClassifier struct {
	primary, fallback Classifier
}

func (c *fallbackClassifier) Classify(ctx context.Context, utterance string) (Intent, error) {
	intent, err := c.primary.Classify(ctx, utterance)
	if err == nil && intent.Label != "" {
		return intent, nil
	}
	return c.fallback.Classify(ctx, utterance)
}

type fallbackExtractor struct {
	primary, fallback Extractor
}

func (e *fallbackExtractor) Extract(ctx context.Context, utterance string, schema []string) (map[string]string, error) {
	fields, err := e.primary.Extract(ctx, utterance, schema)
	if err == nil && len(fields) > 0 {
		return fields, nil
	}
	return e.fallback.Extract(ctx, utterance, schema)
}
