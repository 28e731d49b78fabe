package events

const (
	TopicTableStatus       = "venue.table.status"
	TopicReservationStatus = "venue.reservation.status"
	TopicOrderStatus       = "venue.order.status"
	TopicPaymentStatus     = "venue.payment.status"
	TopicCouponClaimed     = "venue.coupon.claimed"
	TopicLoyaltyPosted     = "venue.loyalty.posted"
	TopicPaymentCallback   = "venue.payment.callback"
)

var topicByType = map[string]string{
	EventTableStatusChanged:       TopicTableStatus,
	EventReservationStatusChanged: TopicReservationStatus,
	EventOrderStatusChanged:       TopicOrderStatus,
	EventPaymentStatusChanged:     TopicPaymentStatus,
	EventCouponClaimed:            TopicCouponClaimed,
	EventLoyaltyPosted:            TopicLoyaltyPosted,
	EventPaymentCallback:          TopicPaymentCallback,
}

func TopicFor(eventType string) (string, bool) {
	t, ok := topicByType[eventType]
	return t, ok
}

func OutboundTopics() []string {
	return []string{TopicTableStatus, TopicReservationStatus, TopicOrderStatus,
		TopicPaymentStatus, TopicCouponClaimed, TopicLoyaltyPosted}
}

// Partition key = entity id so all events of one entity keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
