package tenant

// TemplateKey names one of the tenant-overridable message templates.
type TemplateKey string

const (
	TemplateGreeting        TemplateKey = "greeting"
	TemplateInstantOrder    TemplateKey = "instant_order"
	TemplatePinInstructions TemplateKey = "pin_instructions"
	TemplateConfirmation    TemplateKey = "confirmation"
	TemplatePayment         TemplateKey = "payment"
	TemplateShipping        TemplateKey = "shipping"
)

// Templates maps keys to tenant overrides
type Templates map[TemplateKey]string

// AllTemplateKeys lists every template key
func AllTemplateKeys() []TemplateKey {
	return []TemplateKey{
		TemplateGreeting,
		TemplateInstantOrder,
		TemplatePinInstructions,
		TemplateConfirmation,
		TemplatePayment,
		TemplateShipping,
	}
}

// IsValid checks the key
func (k TemplateKey) IsValid() bool {
	_, ok := defaultTemplates[k]
	return ok
}

// Defaults. Placeholders use the variables built by the rendering package:
// store, customer_name, order_id, product, quantity, total, address,
// confirm_url, connect_url, channel.
var defaultTemplates = map[TemplateKey]string{
	TemplateGreeting: "Hi {customer_name}! You are now connected with {store}. " +
		"We will send your order updates here.",
	TemplateInstantOrder: "Thank you for your order #{order_id} at {store}!\n" +
		"{product} x{quantity}\nTotal: {total}",
	TemplatePinInstructions: "To receive updates for order #{order_id} on {channel}, " +
		"open {connect_url} and press Start.",
	TemplateConfirmation: "Please confirm your order #{order_id}: {product} x{quantity}, total {total}.\n" +
		"Delivery address: {address}",
	TemplatePayment: "We received your payment for order #{order_id}. Thank you!",
	TemplateShipping: "Good news {customer_name}, your order #{order_id} has been shipped.",
}

// DefaultTemplate returns the documented default for key
func DefaultTemplate(key TemplateKey) string {
	return defaultTemplates[key]
}
