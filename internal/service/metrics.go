package service

import (
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
)

// External services reported to Metrics.ExternalCall.
const (
	ExternalEmbedding  = "embedding"
	ExternalGeneration = "generation"
)

// Metrics receives measurements from the pipeline.
type Metrics interface {
	IngestCompleted(processed, total int)
	RetrievalCompleted(candidates, returned int)
	AnswerCompleted(stage domain.PipelineStage, grounded bool, elapsed time.Duration)
	ExternalCall(service string, err error, elapsed time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) IngestCompleted(int, int)                                 {}
func (NopMetrics) RetrievalCompleted(int, int)                              {}
func (NopMetrics) AnswerCompleted(domain.PipelineStage, bool, time.Duration) {}
func (NopMetrics) ExternalCall(string, error, time.Duration)                {}
