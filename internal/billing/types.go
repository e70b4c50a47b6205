package billing

import "encoding/json"

// listEnvelope is the vendor's cursor-paginated list response.
type listEnvelope struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

// recordHeader is the subset of every vendor object the sync engine needs
// before transformation: identity and source-side creation time.
type recordHeader struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
}

// Customer is the vendor customer object, required fields as values and
// optional fields as pointers.
type Customer struct {
	ID            string   `json:"id"`
	Object        string   `json:"object"`
	Email         *string  `json:"email"`
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Phone         *string  `json:"phone"`
	Created       int64    `json:"created"`
	Address       *Address `json:"address"`
	Currency      *string  `json:"currency"`
	Balance       int64    `json:"balance"`
	Delinquent    bool     `json:"delinquent"`
	DefaultSource *string  `json:"default_source"`
	InvoicePrefix *string  `json:"invoice_prefix"`
}

type Address struct {
	Line1      *string `json:"line1"`
	Line2      *string `json:"line2"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
}

// Subscription is the vendor subscription object. Epoch-second fields use 0
// for "not set".
type Subscription struct {
	ID                 string  `json:"id"`
	Object             string  `json:"object"`
	Status             string  `json:"status"`
	Created            int64   `json:"created"`
	CurrentPeriodStart int64   `json:"current_period_start"`
	CurrentPeriodEnd   int64   `json:"current_period_end"`
	CancelAtPeriodEnd  bool    `json:"cancel_at_period_end"`
	CanceledAt         int64   `json:"canceled_at"`
	EndedAt            int64   `json:"ended_at"`
	Customer           string  `json:"customer"`
	Currency           *string `json:"currency"`
	CollectionMethod   *string `json:"collection_method"`
	Items              struct {
		Data []LineItem `json:"data"`
	} `json:"items"`
}

type LineItem struct {
	Price *Price `json:"price"`
}

// Price carries the vendor price. UnitAmount is in minor units (cents);
// product may arrive as a bare id or, when expanded, as a full object.
type Price struct {
	ID         string          `json:"id"`
	Nickname   *string         `json:"nickname"`
	UnitAmount int64           `json:"unit_amount"`
	Currency   *string         `json:"currency"`
	Recurring  *Recurring      `json:"recurring"`
	Product    json.RawMessage `json:"product"`
}

type Recurring struct {
	Interval      string `json:"interval"`
	IntervalCount int64  `json:"interval_count"`
}

// ProductID resolves the price's product reference whether the vendor sent a
// bare id string or an expanded product object. Empty string when absent.
func (p *Price) ProductID() string {
	if p == nil || len(p.Product) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(p.Product, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(p.Product, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ProductIDs lists the product ids across all line items, in order, possibly
// with duplicates.
func (s *Subscription) ProductIDs() []string {
	var ids []string
	for _, item := range s.Items.Data {
		if id := item.Price.ProductID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
