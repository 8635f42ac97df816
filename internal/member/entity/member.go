package entity

import "time"

// Member is a customer who owns warranty contracts.
type Member struct {
	ID         string    `db:"id" json:"id"`
	MemberCode string    `db:"member_code" json:"member_code"`
	Name       string    `db:"name" json:"name"`
	Phone      string    `db:"phone" json:"phone"`
	CitizenID  string    `db:"citizen_id" json:"citizen_id"`
	Address    string    `db:"address" json:"address"`
	WorkAddr   string    `db:"work_address" json:"work_address"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
