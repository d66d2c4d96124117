package authkit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/creatoros/internal/metrics"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var (
	dependencyMutex sync.RWMutex
	activeLogger    *zap.Logger      = zap.NewNop()
	activeClock     Clock            = systemClock{}
	activeMetrics   metrics.Recorder = metrics.Noop{}
)

// ProvideLogger overrides the logger used by the auth handlers. Nil restores the no-op logger.
func ProvideLogger(logger *zap.Logger) {
	dependencyMutex.Lock()
	defer dependencyMutex.Unlock()
	if logger == nil {
		activeLogger = zap.NewNop()
		return
	}
	activeLogger = logger
}

// ProvideClock overrides the clock used for token timestamps. Nil restores the system clock.
func ProvideClock(clock Clock) {
	dependencyMutex.Lock()
	defer dependencyMutex.Unlock()
	if clock == nil {
		activeClock = systemClock{}
		return
	}
	activeClock = clock
}

// ProvideMetrics overrides the event recorder. Nil restores the no-op recorder.
func ProvideMetrics(recorder metrics.Recorder) {
	dependencyMutex.Lock()
	defer dependencyMutex.Unlock()
	activeMetrics = metrics.OrNoop(recorder)
}

func currentLogger() *zap.Logger {
	dependencyMutex.RLock()
	defer dependencyMutex.RUnlock()
	return activeLogger
}

func currentClock() Clock {
	dependencyMutex.RLock()
	defer dependencyMutex.RUnlock()
	return activeClock
}

func currentMetrics() metrics.Recorder {
	dependencyMutex.RLock()
	defer dependencyMutex.RUnlock()
	return activeMetrics
}
