package domain

import "time"

// Supplier is a vendor contact. The products it carries are linked through supplier_products.
type Supplier struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name        string    `json:"name" gorm:"type:varchar(200);not null;uniqueIndex:ux_suppliers_name"`
	ContactName *string   `json:"contact_name,omitempty" gorm:"type:varchar(200)"`
	Phone       *string   `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Email       *string   `json:"email,omitempty" gorm:"type:varchar(200)"`
	Address     *string   `json:"address,omitempty" gorm:"type:text"`
	Notes       *string   `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (Supplier) TableName() string { return "suppliers" }

// SupplierProduct links a supplier to a product it carries.
type SupplierProduct struct {
	SupplierID int64 `gorm:"primaryKey;autoIncrement:false"`
	ProductID  int64 `gorm:"primaryKey;autoIncrement:false;index:ix_supplier_products_product"`
}

func (SupplierProduct) TableName() string { return "supplier_products" }
