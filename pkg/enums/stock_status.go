package enums

// StockStatus is the outcome of validating a request against the lock table.
type StockStatus string

const (
	StockStatusInStock      StockStatus = "INSTOCK"
	StockStatusOutOfStock   StockStatus = "OUT_OF_STOCK"
	StockStatusInsufficient StockStatus = "INSUFFICIENT"
)

// String implements fmt.Stringer.
func (s StockStatus) String() string {
	return string(s)
}
