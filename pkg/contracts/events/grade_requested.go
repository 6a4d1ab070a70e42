package events

import "time"

// Pedido de apuração de um prop, consumido pelo grading-worker.
type GradeRequested struct {
	PropID      string    `json:"prop_id"`
	RequestedBy string    `json:"requested_by,omitempty"` // ex: "admin-service"
	Ts          time.Time `json:"ts"`
}
