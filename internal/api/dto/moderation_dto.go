package dto

// PredictAdRequest is the synchronous prediction payload
type PredictAdRequest struct {
	SellerID         int64  `json:"seller_id" binding:"required"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
	ItemID           int64  `json:"item_id" binding:"required,gt=0"`
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description" binding:"required"`
	Category         int    `json:"category" binding:"gte=0"`
	ImagesQty        int    `json:"images_qty" binding:"gte=0"`
}

// PredictResponse is the model verdict for a synchronous prediction
type PredictResponse struct {
	IsViolation bool    `json:"is_violation"`
	Probability float64 `json:"probability"`
}

// SubmitModerationRequest asks for asynchronous moderation of an item
type SubmitModerationRequest struct {
	ItemID int64 `json:"item_id" binding:"required,gt=0"`
}

// SubmitModerationResponse returns the task handle for status polling
type SubmitModerationResponse struct {
	TaskID  int64  `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ModerationResultResponse is the status snapshot for a moderation task
type ModerationResultResponse struct {
	TaskID       int64    `json:"task_id"`
	Status       string   `json:"status"`
	IsViolation  *bool    `json:"is_violation,omitempty"`
	Probability  *float64 `json:"probability,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
}
