package events

// Evento publicado no tópico "take_recorded" a cada submissão aceita.
// Os contadores refletem apenas takes com status "latest" no momento da gravação.
type TakeRecorded struct {
	TakeID     string `json:"take_id"`
	ReceiptID  string `json:"receipt_id"`
	IdentityID string `json:"identity_id"`
	PropID     string `json:"prop_id"`
	Side       string `json:"side"` // "A" | "B"
	SideACount int    `json:"side_a_count"`
	SideBCount int    `json:"side_b_count"`
	TsUnixMs   int64  `json:"ts_unix_ms"`
}
