// Package destiny decides, once per task id, whether every attempt at the
// task is fated to fail. The decision is a pure function of the id so that
// fault injection is deterministic and portable across runtimes.
package destiny

import "hash/fnv"

// Decide returns true when the task identified by id falls under the
// failure threshold. thresholdPerMille is clamped to [0, 1000]; the same id
// always yields the same decision for a given threshold.
func Decide(id string, thresholdPerMille int) bool {
	if thresholdPerMille <= 0 {
		return false
	}
	if thresholdPerMille >= 1000 {
		return true
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()%1000 < uint64(thresholdPerMille)
}
