package domain

import "github.com/shopspring/decimal"

// Vehicle is a rentable vehicle listed at a store.
type Vehicle struct {
	ID           string
	StoreID      string
	StoreName    string
	OwnerID      string
	Name         string
	PlateNumber  string
	RentPerDay   decimal.Decimal
	RentPerMonth decimal.Decimal
	IsAvailable  bool // Administrative listing flag, not calendar availability
}
