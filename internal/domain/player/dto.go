package player

// AddMoneyRequest for POST /api/players/money
type AddMoneyRequest struct {
	PlayerID int64  `json:"player_id" validate:"required,gt=0"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Account  string `json:"type" validate:"required,money_account"`
}
