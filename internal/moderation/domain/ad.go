package domain

// Ad is a listing under moderation, joined with its seller's verification
// flag. These fields are the model's input and the cache fingerprint source.
type Ad struct {
	ItemID           int64  `db:"item_id"`
	SellerID         int64  `db:"seller_id"`
	SellerIsVerified bool   `db:"seller_is_verified"`
	Name             string `db:"name"`
	Description      string `db:"description"`
	Category         int    `db:"category"`
	ImagesQty        int    `db:"images_qty"`
}
