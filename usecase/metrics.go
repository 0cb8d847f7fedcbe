package usecase

import "time"

// Pipeline stage names used for timing
const (
	StageTranscription = "transcription"
	StageGeneration    = "generation"
	StageSynthesis     = "synthesis"
	StagePersistence   = "persistence"
)

// MetricsRecorder receives pipeline measurements
type MetricsRecorder interface {
	ObserveStage(stage string, elapsed time.Duration)
	GenerationRetry()
	SynthesisFailure()
	Turn(transport, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) GenerationRetry()                   {}
func (nopRecorder) SynthesisFailure()                  {}
func (nopRecorder) Turn(string, string)                {}
