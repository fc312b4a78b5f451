package reconcile

import "github.com/freshfoldapp/freshfold-backend/pkg/enums"

// allowedTransitions is the order status machine. Cancelled and
// delivered are absorbing: nothing leaves them.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusPaid,
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusProcessing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusCompleted,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusCompleted: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// CanTransition reports whether the order status machine permits
// moving from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// settleableStatuses are the order statuses a successful payment moves
// to processing. An order already past processing keeps its status and
// only has payment_status corrected.
var settleableStatuses = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusPaid,
}

// postSettleStatuses are statuses where the order has already advanced;
// a late success event only reconciles payment_status.
var postSettleStatuses = []enums.OrderStatus{
	enums.OrderStatusProcessing,
	enums.OrderStatusCompleted,
	enums.OrderStatusDelivered,
}
