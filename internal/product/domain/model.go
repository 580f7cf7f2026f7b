package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Category string

const (
	CategoryNone           Category = ""
	CategoryFood           Category = "food"
	CategorySchoolSupplies Category = "school_supplies"
	CategoryHairCare       Category = "hair_care"
	CategoryCosmetics      Category = "cosmetics"
	CategoryCleaning       Category = "cleaning"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryNone, CategoryFood, CategorySchoolSupplies, CategoryHairCare, CategoryCosmetics, CategoryCleaning:
		return true
	default:
		return false
	}
}

// Expires reports whether products of this category carry an expiration date.
func (c Category) Expires() bool {
	switch c {
	case CategoryFood, CategoryCosmetics, CategoryCleaning:
		return true
	default:
		return false
	}
}

const DefaultMinStock int64 = 5

type Product struct {
	ID             int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name           string          `json:"name" gorm:"type:varchar(200);not null;uniqueIndex:ux_products_name"`
	Slug           string          `json:"slug" gorm:"type:varchar(220);not null;index:ix_products_slug"`
	Category       Category        `json:"category" gorm:"type:varchar(50);not null;default:''"`
	Description    *string         `json:"description,omitempty" gorm:"type:text"`
	Price          decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	Quantity       int64           `json:"quantity" gorm:"not null;default:0;check:chk_products_quantity,quantity >= 0"`
	MinStock       int64           `json:"min_stock" gorm:"not null"`
	Supplier       *string         `json:"supplier,omitempty" gorm:"type:varchar(200)"`
	ExpirationDate *datatypes.Date `json:"expiration_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Sale is a takeout: stock leaving without an invoice.
type Sale struct {
	ID        int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProductID int64           `json:"product_id" gorm:"not null;index:ix_sales_product"`
	Quantity  int64           `json:"quantity" gorm:"not null"`
	Total     decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

func (Sale) TableName() string { return "sales" }
