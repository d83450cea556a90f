package core

// State is a point-in-time snapshot of every collection. Collections are
// ordered the way the store lists them: newest first, products by name.
type State struct {
	Sales          []Record `json:"sales"`
	Expenses       []Record `json:"expenses"`
	Customers      []Record `json:"customers"`
	StockMovements []Record `json:"stockMovements"`
	Products       []Record `json:"products"`
}

// Collection returns the records of kind k.
func (s State) Collection(k Kind) []Record {
	switch k {
	case KindSales:
		return s.Sales
	case KindExpenses:
		return s.Expenses
	case KindCustomers:
		return s.Customers
	case KindStock:
		return s.StockMovements
	case KindProducts:
		return s.Products
	default:
		return nil
	}
}

// With returns a copy of s whose k collection is recs.
func (s State) With(k Kind, recs []Record) State {
	switch k {
	case KindSales:
		s.Sales = recs
	case KindExpenses:
		s.Expenses = recs
	case KindCustomers:
		s.Customers = recs
	case KindStock:
		s.StockMovements = recs
	case KindProducts:
		s.Products = recs
	}
	return s
}

// Clone deep-copies every collection so callers can't mutate the owner's
// snapshot.
func (s State) Clone() State {
	out := State{}
	for _, k := range Kinds() {
		out = out.With(k, cloneRecords(s.Collection(k)))
	}
	return out
}

func cloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// ActiveProducts returns the products that can be offered on the sales form.
func (s State) ActiveProducts() []Record {
	var out []Record
	for _, p := range s.Products {
		if active, ok := p[FieldActive].(bool); ok && !active {
			continue
		}
		out = append(out, p)
	}
	return out
}
