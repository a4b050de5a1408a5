package monitor

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestInstantSampleDoesNotBlock(t *testing.T) {
	mon := NewInstantMonitor(testLogger())

	start := time.Now()
	snap := mon.Sample()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
	assert.LessOrEqual(t, snap.CPUPercent, 100.0)
}

func TestSampleNeverPanics(t *testing.T) {
	mon := NewInstantMonitor(testLogger())
	assert.NotPanics(t, func() {
		mon.Sample()
		mon.AvailableMemory()
	})
}

func TestNumCPU(t *testing.T) {
	mon := NewSystemMonitor(testLogger())
	assert.GreaterOrEqual(t, mon.NumCPU(), 1)
}
