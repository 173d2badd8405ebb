// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: BaseModel and the model list used by tests
//   - tenant.go: tenants and their message templates
//   - channel.go: channel credentials, identity links, preconnect tokens, order bindings
//   - order.go: orders, confirmation links and confirmation records
//   - outbound.go: the outbound message queue
package models
