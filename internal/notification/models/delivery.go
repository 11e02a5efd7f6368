// Package models defines the outbound notification delivery record.
package models

import (
	"time"

	id "caregate/pkg/domain"
)

// Status is the delivery lifecycle status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Delivery is one outbound notification attempt record. FAILED deliveries
// stay queryable for manual redelivery; nothing is ever silently dropped.
type Delivery struct {
	ID          id.DeliveryID
	EventType   string
	Target      string
	Payload     map[string]string
	Status      Status
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
}
