package events

import "testing"

func TestSubscribable(t *testing.T) {
	for _, et := range SubscribableTypes() {
		if !et.Subscribable() {
			t.Errorf("%q not reported subscribable", et)
		}
	}

	for _, et := range []EventType{"", "order.deleted", "foo.bar", "Order.Completed"} {
		if et.Subscribable() {
			t.Errorf("%q reported subscribable", et)
		}
	}
}
