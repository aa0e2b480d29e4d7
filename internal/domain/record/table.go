package record

import "fmt"

// Table identifies one synced entity type. The set is closed: every value
// is declared here together with its field merge policy.
type Table string

const (
	TableProducts   Table = "products"
	TableCustomers  Table = "customers"
	TableSales      Table = "sales"
	TableSalesItems Table = "sales_items"
	TableCategories Table = "categories"
	TableSuppliers  Table = "suppliers"
)

// FieldPolicy lists the fields of a table whose values are running
// quantities or balances. Every other field is a scalar.
type FieldPolicy struct {
	Quantity []string
}

// IsQuantity reports whether field is merged additively.
func (p FieldPolicy) IsQuantity(field string) bool {
	for _, f := range p.Quantity {
		if f == field {
			return true
		}
	}
	return false
}

var policies = map[Table]FieldPolicy{
	TableProducts:   {Quantity: []string{"stock_quantity"}},
	TableCustomers:  {Quantity: []string{"loyalty_points", "outstanding_balance"}},
	TableSales:      {},
	TableSalesItems: {},
	TableCategories: {},
	TableSuppliers:  {Quantity: []string{"outstanding_balance"}},
}

// Tables returns every known table in sync priority order.
func Tables() []Table {
	return []Table{
		TableProducts,
		TableCustomers,
		TableSales,
		TableSalesItems,
		TableCategories,
		TableSuppliers,
	}
}

// Policy returns the merge policy of the table.
func (t Table) Policy() FieldPolicy {
	return policies[t]
}

// Valid reports whether t is one of the declared tables.
func (t Table) Valid() bool {
	_, ok := policies[t]
	return ok
}

// ParseTable validates a table name coming from an outer surface.
func ParseTable(name string) (Table, error) {
	t := Table(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown table %q", ErrInvalidInput, name)
	}
	return t, nil
}
