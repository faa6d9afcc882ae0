// Package eventbus provides a minimal per-topic publish/subscribe primitive.
//
// A Topic carries one kind of event. Subscribers register a handler and
// receive every subsequent emission synchronously, in the emitter's
// goroutine. Destroying a topic releases all subscribers; a destroyed topic
// silently drops emissions and registrations.
//
// # Basic Usage
//
//	connected := eventbus.NewTopic[struct{}]()
//	id := connected.Subscribe(func(struct{}) { fmt.Println("up") })
//	connected.Emit(struct{}{})
//	connected.Unsubscribe(id)
//	connected.Destroy()
package eventbus
