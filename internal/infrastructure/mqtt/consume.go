package mqtt

import "github.com/eclipse/paho.golang/paho"

// Messages returns the queue of received messages. The channel is never
// closed; stop reading it when the consumer is done.
func (c *Client) Messages() <-chan *Message {
	return c.messages
}

// StopConsuming stops queueing newly received messages. Messages already
// queued stay readable. A message that arrives while stopped is held,
// unacknowledged, until StartConsuming or until its connection ends; the
// broker sends nothing further on that connection meanwhile, so
// acknowledgements keep their arrival order.
//
// Safe to call from any goroutine, any number of times.
func (c *Client) StopConsuming() {
	c.consumeMu.Lock()
	defer c.consumeMu.Unlock()

	if !c.consuming {
		return
	}
	c.consuming = false
	close(c.paused)
	c.resumed = make(chan struct{})
}

// StartConsuming resumes queueing after StopConsuming. It is a no-op while
// delivery is already running.
func (c *Client) StartConsuming() {
	c.consumeMu.Lock()
	defer c.consumeMu.Unlock()

	if c.consuming {
		return
	}
	c.consuming = true
	close(c.resumed)
	c.paused = make(chan struct{})
}

// IsConsuming reports whether received messages are currently queued.
func (c *Client) IsConsuming() bool {
	c.consumeMu.Lock()
	defer c.consumeMu.Unlock()
	return c.consuming
}

// handlePublish runs on the paho router goroutine for every PUBLISH.
//
// It blocks while the queue is full or delivery is stopped, and returns
// once the message is queued or release is closed. A message released
// without being queued is never acknowledged, so a persistent session gets
// it again.
func (c *Client) handlePublish(pc *paho.Client, p *paho.Publish, release <-chan struct{}) {
	msg := fromPublish(pc, p)
	msg.Filter = c.filterFor(msg.SubscriptionID)

	logger := c.getLogger()

	for {
		c.consumeMu.Lock()
		consuming := c.consuming
		paused := c.paused
		resumed := c.resumed
		c.consumeMu.Unlock()

		if !consuming {
			if logger != nil {
				logger.Debug("delivery stopped, holding message", "topic", p.Topic)
			}
			select {
			case <-resumed:
				continue
			case <-release:
				if logger != nil {
					logger.Debug("connection closed while delivery was stopped, leaving message unacknowledged", "topic", p.Topic)
				}
				return
			}
		}

		select {
		case c.messages <- msg:
			return
		case <-paused:
		case <-release:
			return
		}
	}
}
