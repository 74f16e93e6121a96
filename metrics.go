package racedns

import "expvar"

// ListenerMetrics hold the counters for queries passing through a listener
// or an upstream provider session. Exposed via expvar under
// racedns.<base>.<id>.
type ListenerMetrics struct {
	// Count of queries received or sent.
	query *expvar.Int

	// Responses by response code.
	response *expvar.Map

	// Errors by failure type.
	err *expvar.Map

	// Count of queries dropped without a response.
	drop *expvar.Int
}

func NewListenerMetrics(base, id string) *ListenerMetrics {
	return &ListenerMetrics{
		query:    getVarInt(base, id, "query"),
		response: getVarMap(base, id, "response"),
		err:      getVarMap(base, id, "error"),
		drop:     getVarInt(base, id, "drop"),
	}
}

// RaceMetrics hold the counters for the race coordinator.
type RaceMetrics struct {
	// Count of races started.
	race *expvar.Int

	// Wins by provider name.
	win *expvar.Map

	// Races resolved from a soft-failure response because no provider
	// answered acceptably.
	fallback *expvar.Int

	// Races that ended in a terminal failure.
	fail *expvar.Int
}

func NewRaceMetrics(id string) *RaceMetrics {
	return &RaceMetrics{
		race:     getVarInt("race", id, "query"),
		win:      getVarMap("race", id, "win"),
		fallback: getVarInt("race", id, "fallback"),
		fail:     getVarInt("race", id, "fail"),
	}
}
