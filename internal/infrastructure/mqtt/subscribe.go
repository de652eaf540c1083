package mqtt

import (
	"context"
	"fmt"

	"github.com/eclipse/paho.golang/paho"
)

// Subscribe registers a subscription for filter at the given QoS.
//
// When the broker supports subscription identifiers, the subscription is
// tagged with a fresh identifier and messages it produces carry the filter
// in Message.Filter.
//
// Subscribe makes exactly one SUBSCRIBE round trip; it does not retry and
// does not remember the subscription for later reconnects.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - filter: Topic filter, wildcards allowed
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or ErrSubscribeFailed wrapping the cause
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	pc, connected := c.current()
	if !connected {
		return ErrNotConnected
	}

	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: qos},
		},
	}

	id, tagged := c.registerFilter(filter)
	if tagged {
		sub.Properties = &paho.SubscribeProperties{SubscriptionIdentifier: &id}
	}

	subCtx, cancel := context.WithTimeout(ctx, defaultOperationTimeout)
	defer cancel()

	sa, err := pc.Subscribe(subCtx, sub)
	if err != nil {
		c.forgetFilter(id)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if len(sa.Reasons) > 0 && sa.Reasons[0] >= 0x80 {
		c.forgetFilter(id)
		return fmt.Errorf("%w: %q rejected with reason code 0x%02x", ErrSubscribeFailed, filter, sa.Reasons[0])
	}

	return nil
}

// setSubscriptionIDsAvailable records whether the broker accepts
// subscription identifiers on the current connection.
func (c *Client) setSubscriptionIDsAvailable(ok bool) {
	c.subMu.Lock()
	c.subIDs = ok
	c.subMu.Unlock()
}

// registerFilter allocates a subscription identifier for filter. It returns
// false when identifiers are not available on this connection.
func (c *Client) registerFilter(filter string) (int, bool) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if !c.subIDs {
		return 0, false
	}
	c.nextSubID++
	c.subscriptions[c.nextSubID] = filter
	return c.nextSubID, true
}

// forgetFilter drops a registration after a failed subscribe.
func (c *Client) forgetFilter(id int) {
	if id == 0 {
		return
	}
	c.subMu.Lock()
	delete(c.subscriptions, id)
	c.subMu.Unlock()
}

// filterFor returns the filter registered under a subscription identifier.
func (c *Client) filterFor(id int) string {
	if id == 0 {
		return ""
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subscriptions[id]
}

// SubscriptionCount returns the number of subscriptions registered with an
// identifier on this client.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
