package models

import "github.com/google/uuid"

// PaymentLink is a checkout link from the payment links library. Price is the
// label shown to clients, e.g. "1.200,00 €".
type PaymentLink struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"type:varchar(200)" json:"name"`
	URL   string    `gorm:"type:text;index" json:"url"`
	Price string    `gorm:"type:varchar(50)" json:"price"`
}

func (PaymentLink) TableName() string {
	return "payment_links"
}
