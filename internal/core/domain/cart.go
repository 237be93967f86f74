package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LineItem is a product held in a cart. It serializes flat: the product
// fields and quantity share one JSON object.
type LineItem struct {
	Product
	Quantity int `json:"quantity"`
}

func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is an ordered list of line items, unique by product id.
type Cart []LineItem

// DecodeCart parses a stored snapshot. Anything unreadable yields an empty
// cart; entries that break the cart invariants are dropped.
func DecodeCart(data []byte) (Cart, error) {
	if len(data) == 0 {
		return Cart{}, nil
	}

	var raw []LineItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return Cart{}, err
	}

	cart := make(Cart, 0, len(raw))
	for _, li := range raw {
		if li.Quantity <= 0 || cart.Contains(li.ID) {
			continue
		}
		cart = append(cart, li)
	}
	return cart, nil
}

func (c Cart) Encode() ([]byte, error) {
	if c == nil {
		c = Cart{}
	}
	return json.Marshal(c)
}

func (c Cart) index(productID int) int {
	for i, li := range c {
		if li.ID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) Contains(productID int) bool {
	return c.index(productID) >= 0
}

func (c Cart) Find(productID int) (LineItem, bool) {
	i := c.index(productID)
	if i < 0 {
		return LineItem{}, false
	}
	return c[i], true
}

// Add returns a cart with product appended at quantity 1. Adding a product
// already present changes nothing.
func (c Cart) Add(p Product) (Cart, bool) {
	if c.Contains(p.ID) {
		return c, false
	}
	out := c.clone()
	return append(out, LineItem{Product: p, Quantity: 1}), true
}

func (c Cart) Remove(productID int) (Cart, bool) {
	i := c.index(productID)
	if i < 0 {
		return c, false
	}
	out := make(Cart, 0, len(c)-1)
	out = append(out, c[:i]...)
	return append(out, c[i+1:]...), true
}

// Adjust applies delta to the quantity of productID. A line item whose
// quantity falls to zero or below is removed.
func (c Cart) Adjust(productID, delta int) (Cart, bool) {
	i := c.index(productID)
	if i < 0 {
		return c, false
	}
	if c[i].Quantity+delta <= 0 {
		return c.Remove(productID)
	}
	out := c.clone()
	out[i].Quantity += delta
	return out, true
}

// Total is the sum of price times quantity over all line items.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range c {
		total = total.Add(li.LineTotal())
	}
	return total.Round(2)
}

// Units is the summed quantity of all line items.
func (c Cart) Units() int {
	n := 0
	for _, li := range c {
		n += li.Quantity
	}
	return n
}

func (c Cart) clone() Cart {
	out := make(Cart, len(c), len(c)+1)
	copy(out, c)
	return out
}
