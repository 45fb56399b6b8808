package enums

// UnitKind identifies which table backs a sellable unit.
type UnitKind string

const (
	UnitKindProduct       UnitKind = "product"
	UnitKindParameterSet  UnitKind = "parameter_set"
	UnitKindSessionTicket UnitKind = "session_ticket"
)

// String implements fmt.Stringer.
func (k UnitKind) String() string {
	return string(k)
}
