package entity

import "time"

// Shop is a partner shop that receives devices for repair.
type Shop struct {
	ID        string    `db:"id" json:"id"`
	ShopCode  string    `db:"shop_code" json:"shop_code"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
