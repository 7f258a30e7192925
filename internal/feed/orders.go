package feed

import "krakenfeed/internal/models"

// OrderRegistry tracks the account's open orders on the subscribed
// instrument. Orders keep their arrival order across updates. Not safe for
// concurrent use.
type OrderRegistry struct {
	byID  map[string]int
	order []models.OpenOrder
}

func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{byID: make(map[string]int)}
}

// ApplySnapshot replaces the whole registry. Orders already fully filled are
// not admitted.
func (r *OrderRegistry) ApplySnapshot(orders []models.OpenOrder) {
	r.Reset()
	for _, o := range orders {
		if o.Live() {
			r.upsert(o)
		}
	}
}

// Apply processes one delta. A cancel flag or a fully filled order removes
// the entry; otherwise the order is inserted or overwritten. Removing an
// unknown id is a no-op.
func (r *OrderRegistry) Apply(orderID string, isCancel bool, order *models.OpenOrder) {
	if isCancel {
		r.remove(orderID)
		return
	}
	if order == nil {
		return
	}
	if !order.Live() {
		r.remove(order.ID)
		return
	}
	r.upsert(*order)
}

// Get returns the order with the given id.
func (r *OrderRegistry) Get(orderID string) (models.OpenOrder, bool) {
	idx, ok := r.byID[orderID]
	if !ok {
		return models.OpenOrder{}, false
	}
	return r.order[idx], true
}

// Len returns the number of live orders.
func (r *OrderRegistry) Len() int {
	return len(r.order)
}

// List returns a copy of all live orders in arrival order.
func (r *OrderRegistry) List() []models.OpenOrder {
	out := make([]models.OpenOrder, len(r.order))
	copy(out, r.order)
	return out
}

// Reset drops all orders, as on reconnect where the private snapshot will
// rebuild the registry.
func (r *OrderRegistry) Reset() {
	r.byID = make(map[string]int)
	r.order = r.order[:0]
}

func (r *OrderRegistry) upsert(o models.OpenOrder) {
	if idx, ok := r.byID[o.ID]; ok {
		r.order[idx] = o
		return
	}
	r.byID[o.ID] = len(r.order)
	r.order = append(r.order, o)
}

func (r *OrderRegistry) remove(orderID string) {
	idx, ok := r.byID[orderID]
	if !ok {
		return
	}
	delete(r.byID, orderID)
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	for i := idx; i < len(r.order); i++ {
		r.byID[r.order[i].ID] = i
	}
}
