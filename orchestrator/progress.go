package orchestrator

import (
	"time"

	"mapimport/model"
)

// reportThrottle is the minimum interval between non-forced reports.
const reportThrottle = 100 * time.Millisecond

// progressReporter accumulates phase weights into an overall percent
// and throttles delivery to the sink per spec.md §4.8: at most one
// report per 100ms unless it's the first/last item of a phase, it's
// forced, or at least 1% of the phase has elapsed since the last one.
type progressReporter struct {
	sink  ProgressSink
	start time.Time

	havePhase  bool
	curPhase   model.Phase
	phaseStart time.Time
	lastReport time.Time
}

func newProgressReporter(sink ProgressSink, start time.Time) *progressReporter {
	return &progressReporter{sink: sink, start: start}
}

func (r *progressReporter) report(phase model.Phase, current, total int, forced bool) {
	now := time.Now()
	if !r.havePhase || phase != r.curPhase {
		r.havePhase = true
		r.curPhase = phase
		r.phaseStart = now
	}

	isFirst := current <= 1
	isLast := total > 0 && current >= total
	throttleElapsed := now.Sub(r.lastReport) >= reportThrottle

	sinceLast := now.Sub(r.lastReport)
	phaseElapsedSoFar := now.Sub(r.phaseStart)
	onePercentOfPhase := sinceLast >= phaseElapsedSoFar/100

	if !forced && !isFirst && !isLast && !throttleElapsed && !onePercentOfPhase {
		return
	}

	phasePercent := 0.0
	switch {
	case total > 0:
		phasePercent = float64(current) / float64(total)
	case isLast || forced:
		phasePercent = 1
	}

	overall := weightBefore(phase) + phasePercent*phase.Weight()
	elapsed := now.Sub(r.start).Seconds()
	phaseElapsed := now.Sub(r.phaseStart).Seconds()

	var itemsPerSecond float64
	if phaseElapsed > 0 {
		itemsPerSecond = float64(current) / phaseElapsed
	}

	r.sink.Report(model.ProgressEvent{
		Phase:          phase,
		CurrentItem:    current,
		TotalItems:     total,
		PhaseNumber:    int(phase) + 1,
		OverallPercent: overall,
		ElapsedSeconds: elapsed,
		ItemsPerSecond: itemsPerSecond,
	})

	r.lastReport = now
}

func weightBefore(phase model.Phase) float64 {
	var sum float64
	for p := model.PhaseParse; p < phase; p++ {
		sum += p.Weight()
	}
	return sum
}
