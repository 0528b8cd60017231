package services

import (
	"github.com/stwalsh4118/rentroll/internal/ai"
	"github.com/stwalsh4118/rentroll/internal/cache"
	"github.com/stwalsh4118/rentroll/internal/classifier"
	"github.com/stwalsh4118/rentroll/internal/decoder"
	"github.com/stwalsh4118/rentroll/internal/extractor"
	"github.com/stwalsh4118/rentroll/internal/headers"
	"github.com/stwalsh4118/rentroll/internal/logger"
	"github.com/stwalsh4118/rentroll/internal/telemetry"
	"github.com/stwalsh4118/rentroll/internal/tenants"
	"github.com/stwalsh4118/rentroll/internal/vocabulary"
)

// PipelineConfig wires the default pipeline stages.
type PipelineConfig struct {
	Vocabulary *vocabulary.Vocabulary
	// Analyzer is the AI collaborator; nil runs heuristics only.
	Analyzer ai.Analyzer
	Cache    cache.Cache
	Metrics  *telemetry.Metrics
	// NewID generates tenant record ids; nil uses random UUIDs.
	NewID tenants.IDFunc

	HeaderMinConfidence      float64
	AIHeaderAcceptConfidence float64
	ClassifierMinConfidence  float64
}

// NewPipeline builds an IngestService from the standard stages.
func NewPipeline(cfg PipelineConfig, log *logger.Logger) IngestService {
	vocab := cfg.Vocabulary
	if vocab == nil {
		vocab = vocabulary.Default()
	}

	converter := tenants.NewConverter()
	if cfg.NewID != nil {
		converter = tenants.NewConverterWithIDs(cfg.NewID)
	}

	deps := IngestDeps{
		Decoder:    decoder.NewDecoder(log),
		Classifier: classifier.NewClassifier(cfg.Analyzer, vocab, cfg.ClassifierMinConfidence, log),
		Detector:   headers.NewDetector(cfg.Analyzer, vocab, cfg.AIHeaderAcceptConfidence, log),
		Extractor:  extractor.NewExtractor(vocab, log),
		Converter:  converter,
		Cache:      cfg.Cache,
		Metrics:    cfg.Metrics,
	}
	opts := IngestOptions{
		HeaderMinConfidence: cfg.HeaderMinConfidence,
		AIEnabled:           cfg.Analyzer != nil,
	}
	return NewIngestService(deps, opts, log)
}
