package events

import "time"

// Evento emitido após a apuração de um prop.
// GradedCount é o número de takes marcados nesta invocação (zero em re-execuções).
type PropGraded struct {
	PropID      string    `json:"prop_id"`
	WinningSide string    `json:"winning_side"` // "A" | "B"
	GradedCount int64     `json:"graded_count"`
	Ts          time.Time `json:"ts"`
}
