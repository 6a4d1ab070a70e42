package dto

type SubmitTakeRequest struct {
	IdentityToken string `json:"identityToken"` // telefone verificado, normalizado
	PropID        string `json:"propId"`
	Side          string `json:"side"` // "A" | "B"
}

type CreateChallengeRequest struct {
	PackID    string `json:"packId"`
	ReceiptA  string `json:"receiptA"`
	ReceiptB  string `json:"receiptB"`
	BonusPool int    `json:"bonus_pool"` // em tokens; 0 = sem bônus
}
