package rendering

import (
	"strings"

	"github.com/orderbot/backend/internal/domain/order"
	"github.com/orderbot/backend/internal/domain/tenant"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Standard variable names available to every order template
const (
	VarStore        = "store"
	VarCustomerName = "customer_name"
	VarOrderID      = "order_id"
	VarProduct      = "product"
	VarQuantity     = "quantity"
	VarTotal        = "total"
	VarUnitPrice    = "unit_price"
	VarAddress      = "address"
	VarPhone        = "phone"
	VarStatus       = "status"
	VarConfirmURL   = "confirm_url"
	VarConnectURL   = "connect_url"
	VarChannel      = "channel"
)

// OrderVars builds the standard variables for an order. Money values are
// formatted for the tenant's locale; extra entries override the defaults.
func OrderVars(o *order.Order, t *tenant.Tenant, extra Vars) Vars {
	vars := Vars{}
	locale := ""
	if t != nil {
		vars[VarStore] = t.Name
		locale = t.Locale
	}
	if o != nil {
		vars[VarCustomerName] = o.CustomerName
		vars[VarOrderID] = o.ID
		vars[VarProduct] = o.ProductName
		vars[VarQuantity] = o.Quantity
		vars[VarTotal] = FormatAmount(o.Total, locale)
		vars[VarUnitPrice] = FormatAmount(o.UnitPrice, locale)
		vars[VarAddress] = o.Address
		vars[VarPhone] = o.CustomerPhone
		vars[VarStatus] = string(o.Status)
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// FormatAmount renders d with two decimals and locale grouping, e.g.
// 1234.5 -> "1,234.50" for en and "1.234,50" for de. An empty or unknown
// locale falls back to plain StringFixed(2).
func FormatAmount(d decimal.Decimal, locale string) string {
	tag, ok := parseLocale(locale)
	if !ok {
		return d.StringFixed(2)
	}
	f, _ := d.Round(2).Float64()
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func parseLocale(locale string) (language.Tag, bool) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
