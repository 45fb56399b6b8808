package enums

// ProductStatus controls catalog visibility; historical orders keep referencing
// suspended products so rows are never deleted.
type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusPublished ProductStatus = "published"
	ProductStatusSuspended ProductStatus = "suspended"
)

// IsPurchasable reports whether the product may be added to a checkout.
func (s ProductStatus) IsPurchasable() bool {
	return s == ProductStatusPublished
}
