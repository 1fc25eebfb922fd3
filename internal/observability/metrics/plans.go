package metrics

import "time"

// ModuleBuild records one compile-and-build with its result ("ok",
// "cycle", "dangling", "duplicate", "invalid", ...).
func ModuleBuild(result string, d time.Duration, actions int) {
	if !enabled {
		return
	}
	buildTotal.WithLabelValues(result).Inc()
	buildDuration.Observe(d.Seconds())
	if result == "ok" {
		planActions.Observe(float64(actions))
	}
}

// PlanPublish records a publish request.
func PlanPublish(status string) {
	if !enabled {
		return
	}
	planPublishTotal.WithLabelValues(status).Inc()
}

// PlanRetrieve records a plan retrieval.
func PlanRetrieve(status string) {
	if !enabled {
		return
	}
	planRetrieveTotal.WithLabelValues(status).Inc()
}

// PlanDelete records a plan deletion.
func PlanDelete(status string) {
	if !enabled {
		return
	}
	planDeleteTotal.WithLabelValues(status).Inc()
}
