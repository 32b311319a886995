package mqtt

import (
	"fmt"
)

// Subscribe registers handler for topic, which may carry the + and #
// wildcards. The subscription is restored after every reconnect.
//
//	err := client.Subscribe(client.Topics().AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        sensor, action, _ := client.Topics().ParseCommand(topic)
//	        return svc.Command(ctx, sensor, action, payload)
//	    })
//
// Parameters:
//   - topic: Topic filter
//   - qos: Maximum QoS for delivered messages
//   - handler: Called for every message; must not be nil
//
// Returns:
//   - error: ErrNotConnected, a validation error, or ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Registered before the SUBSCRIBE goes out so a reconnect in between
	// restores it.
	c.track(topic, &subscription{qos: qos, handler: handler})

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.track(topic, nil)
		return err
	}
	return nil
}

// Unsubscribe removes a subscription. Messages already in flight may still
// reach the handler.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(topic, nil)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// HasSubscription reports whether topic, compared literally, is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// track records sub for topic, or forgets topic when sub is nil.
func (c *Client) track(topic string, sub *subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if sub == nil {
		delete(c.subscriptions, topic)
		return
	}
	c.subscriptions[topic] = *sub
}
