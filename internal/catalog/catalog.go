// Package catalog holds the apparel catalog model and its parquet codec.
package catalog

import (
	"fmt"
	"strings"
)

const (
	CategoryClothing = "clothing"
	CategoryFootwear = "footwear"

	TableApparels = "apparels"
)

// Apparel is one sellable catalog item. Field tags map to both the parquet
// schema and the apparels table columns.
type Apparel struct {
	ID          string `parquet:"id" json:"id"`
	Name        string `parquet:"name" json:"name"`
	Category    string `parquet:"category" json:"category"`
	Subcategory string `parquet:"subcategory" json:"subcategory"`
	Gender      string `parquet:"gender" json:"gender"`
	Color       string `parquet:"color" json:"color"`
	Size        string `parquet:"size" json:"size"`
	Brand       string `parquet:"brand" json:"brand"`
	Material    string `parquet:"material" json:"material"`
	PriceCents  int64  `parquet:"price_cents" json:"price_cents"`
	InStock     bool   `parquet:"in_stock" json:"in_stock"`
	Description string `parquet:"description" json:"description"`
}

func (a Apparel) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("apparel id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("apparel %s: name is required", a.ID)
	}
	switch a.Category {
	case CategoryClothing, CategoryFootwear:
	default:
		return fmt.Errorf("apparel %s: invalid category %q", a.ID, a.Category)
	}
	if a.PriceCents < 0 {
		return fmt.Errorf("apparel %s: price must not be negative", a.ID)
	}
	return nil
}

// Columns lists the apparels table columns in Apparel field order.
func Columns() []string {
	return []string{
		"id", "name", "category", "subcategory", "gender", "color",
		"size", "brand", "material", "price_cents", "in_stock", "description",
	}
}

// Values returns the column values of a in Columns order.
func Values(a Apparel) []any {
	return []any{
		a.ID, a.Name, a.Category, a.Subcategory, a.Gender, a.Color,
		a.Size, a.Brand, a.Material, a.PriceCents, a.InStock, a.Description,
	}
}
