package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Bill события
	EventTypeBillCreated EventType = "bill.created"
	EventTypeBillFailed  EventType = "bill.failed"

	// Inventory события
	EventTypeStockReserved EventType = "stock.reserved"
	EventTypeStockLow      EventType = "stock.low"
)

// Topics для Kafka
const (
	TopicBillEvents      = "billing.bill.events"
	TopicInventoryEvents = "billing.inventory.events"
	TopicDeadLetterQueue = "billing.dlq" // Dead Letter Queue для failed messages
)

// BillEvent представляет событие по счёту
type BillEvent struct {
	EventType  EventType              `json:"event_type"`
	BillID     string                 `json:"bill_id"`
	BillNumber string                 `json:"bill_number"`
	CustomerID string                 `json:"customer_id"`
	TotalMinor int64                  `json:"total_minor"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewBillEvent создает новое событие по счёту
func NewBillEvent(eventType EventType, billID, billNumber, customerID string, totalMinor int64) *BillEvent {
	return &BillEvent{
		EventType:  eventType,
		BillID:     billID,
		BillNumber: billNumber,
		CustomerID: customerID,
		TotalMinor: totalMinor,
		Timestamp:  time.Now(),
	}
}
