package models

import (
	"github.com/google/uuid"
)

type Category struct {
	BaseModel
	Name        string     `json:"name" gorm:"size:100;not null"`
	Slug        string     `json:"slug" gorm:"size:120;uniqueIndex;not null"`
	Description string     `json:"description" gorm:"type:text"`
	ParentID    *uuid.UUID `json:"parent_id" gorm:"type:uuid;index"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`

	Children []Category `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

// File is a downloadable item listed by a seller. Price is in minor units.
type File struct {
	BaseModel
	SellerID    uuid.UUID  `json:"seller_id" gorm:"type:uuid;not null;index"`
	CategoryID  *uuid.UUID `json:"category_id" gorm:"type:uuid;index"`
	Title       string     `json:"title" gorm:"size:255;not null"`
	Description string     `json:"description" gorm:"type:text"`
	Price       int64      `json:"price" gorm:"not null"`
	Currency    string     `json:"currency" gorm:"size:3;not null;default:'NGN'"`
	StorageKey  string     `json:"-" gorm:"size:512"`
	FileURL     string     `json:"-" gorm:"size:1024"`
	FileName    string     `json:"file_name" gorm:"size:255"`
	FileSize    int64      `json:"file_size"`
	MimeType    string     `json:"mime_type" gorm:"size:100"`
	PreviewURL  string     `json:"preview_url,omitempty" gorm:"size:1024"`
	Tags        StringList `json:"tags"`
	IsApproved  bool       `json:"is_approved" gorm:"default:false;index"`
	IsActive    bool       `json:"is_active" gorm:"default:true;index"`
	SalesCount  int64      `json:"sales_count" gorm:"default:0"`

	Seller   *User     `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
}

// Purchasable reports whether the file can currently be bought.
func (f *File) Purchasable() bool {
	return f.IsApproved && f.IsActive && f.Price > 0
}
