package dto

type SubmitTakeResponse struct {
	TakeID     string `json:"takeId"`
	ReceiptID  string `json:"receiptId"`
	SideACount int    `json:"side_a_count"`
	SideBCount int    `json:"side_b_count"`
}

type TakeItem struct {
	TakeID        string `json:"takeId"`
	PropID        string `json:"propId"`
	Side          string `json:"side"`
	Result        string `json:"result"`
	PointsAwarded int    `json:"points_awarded"`
	CreatedAt     string `json:"createdAt"`
}

type PropItem struct {
	PropID     string `json:"propId"`
	PackID     string `json:"packId"`
	SideALabel string `json:"sideALabel"`
	SideBLabel string `json:"sideBLabel"`
	Points     int    `json:"points"`
	Status     string `json:"status"`
}

type SideCountsResponse struct {
	PropID     string `json:"propId"`
	SideACount int    `json:"side_a_count"`
	SideBCount int    `json:"side_b_count"`
}

type CreateChallengeResponse struct {
	ChallengeID string `json:"challengeId"`
}
