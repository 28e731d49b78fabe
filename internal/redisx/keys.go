package redisx

import "time"

const (
	// table:{table_id}:status -> AVAILABLE | RESERVED | IN_USE | MAINTENANCE
	KeyTableStatus = "table:%s:status"

	// order:{order_id}:status -> PENDING | PAID | ...
	KeyOrderStatus = "order:%s:status"
)

// TTLStatus is zero: status keys never expire.
var TTLStatus time.Duration = 0
