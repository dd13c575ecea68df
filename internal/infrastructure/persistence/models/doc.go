// Package models contains GORM persistence models that map to database tables.
// Domain aggregates stay free of ORM tags; repositories convert between the
// two with the ToDomain / FromDomain mappers defined next to each model.
//
// Structure:
// - base.go: AggregateModel with identity, timestamps and version
// - inventory.go: inventory_items and their inventory_reservations rows
// - order.go: orders and their order_items rows
package models
