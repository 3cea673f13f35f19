package mqttbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ampctl/pkg/amp"
	"ampctl/pkg/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var errNotConnected = errors.New("not connected to MQTT broker")

// controller talks to one remote amplifier controller. Commands go to
// "<root>/commands" and are answered on "<root>/responses"; the controller
// also publishes its measurements on "<root>/telemetry".
type controller struct {
	client  mqtt.Client
	root    string
	qos     byte
	timeout time.Duration
	retry   int

	mu        sync.Mutex // guards the cached telemetry
	telemetry telemetryMsg
	received  time.Time
	maxAge    time.Duration

	// sendMu serialises commands so each response matches its request.
	sendMu       sync.Mutex
	responseChan chan Response
	logger       log.FieldLogger
}

func newController(client mqtt.Client, root string, cfg port.Config, logger log.FieldLogger) *controller {
	return &controller{
		client:       client,
		root:         root,
		timeout:      cfg.Timeout,
		retry:        cfg.Retry,
		maxAge:       defaultTelemetryAge,
		responseChan: make(chan Response, 1),
		logger:       logger.WithField("component", "mqttbridge"),
	}
}

// setQoS changes the QoS of commands and renews the subscriptions with it.
func (c *controller) setQoS(qos byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if qos == c.qos {
		return nil
	}
	c.qos = qos
	if err := c.subscribe(); err != nil {
		return fmt.Errorf("%w: %v", port.ErrIO, err)
	}
	return nil
}

// subscribe attaches the response and telemetry handlers.
func (c *controller) subscribe() error {
	if !c.client.IsConnected() {
		return errNotConnected
	}

	if token := c.client.Subscribe(c.root+"/responses", c.qos, c.responseHandler); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to responses topic: %v", token.Error())
	}
	if token := c.client.Subscribe(c.root+"/telemetry", c.qos, c.telemetryHandler); token.Wait() && token.Error() != nil {
		c.client.Unsubscribe(c.root + "/responses")
		return fmt.Errorf("failed to subscribe to telemetry topic: %v", token.Error())
	}
	return nil
}

func (c *controller) close() {
	if token := c.client.Unsubscribe(c.root+"/responses", c.root+"/telemetry"); token.Wait() && token.Error() != nil {
		c.logger.Warnf("Failed to unsubscribe: %v", token.Error())
	}
	c.client.Disconnect(100)
}

// sendCommand publishes a command and waits for the matching response.
// Lost responses are retried as the port policy says.
func (c *controller) sendCommand(code cmdCode, arg string) (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= c.retry; attempt++ {
		if attempt > 0 {
			c.logger.Debugf("retry %d/%d after: %v", attempt, c.retry, lastErr)
		}

		value, err := c.exchange(code, arg)
		if err == nil || !errors.Is(err, port.ErrTimeout) {
			return value, err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *controller) exchange(code cmdCode, arg string) (string, error) {
	if !c.client.IsConnected() {
		return "", fmt.Errorf("%w: %v", port.ErrIO, errNotConnected)
	}

	// Drop responses that arrived after an earlier timeout.
	for len(c.responseChan) > 0 {
		<-c.responseChan
	}

	msg := formatCommand(code, arg)
	c.logger.Debugf("Sending command: %s", msg)

	topic := c.root + "/commands"
	if token := c.client.Publish(topic, c.qos, false, msg); token.Wait() && token.Error() != nil {
		return "", fmt.Errorf("%w: failed to publish command: %v", port.ErrIO, token.Error())
	}

	deadline := time.After(c.timeout)
	for {
		select {
		case resp := <-c.responseChan:
			if resp.Code != code {
				c.logger.Warnf("Unexpected response command: %c", resp.Code)
				continue
			}
			c.logger.Debugf("Response: %+v", resp)
			if resp.Error {
				return "", fmt.Errorf("command %c: %w", code, amp.ErrRejected)
			}
			return resp.Value, nil

		case <-deadline:
			return "", fmt.Errorf("%w waiting for response to %c", port.ErrTimeout, code)
		}
	}
}

func (c *controller) responseHandler(client mqtt.Client, msg mqtt.Message) {
	resp, err := parseResponse(string(msg.Payload()))
	if err != nil {
		c.logger.Errorf("Failed to parse response: %v", err)
		return
	}

	select {
	case c.responseChan <- resp:
	case <-time.After(1 * time.Second):
		c.logger.Warn("Timeout while sending response to the channel")
	}
}

func (c *controller) telemetryHandler(client mqtt.Client, msg mqtt.Message) {
	var telemetry telemetryMsg
	if err := json.Unmarshal(msg.Payload(), &telemetry); err != nil {
		c.logger.Errorf("Failed to unmarshal telemetry message: %v", err)
		return
	}

	c.logger.Debugf("Telemetry: %+v", telemetry)

	c.mu.Lock()
	c.telemetry = telemetry
	c.received = time.Now()
	c.mu.Unlock()
}

// lastTelemetry returns the cached telemetry if it is recent enough.
func (c *controller) lastTelemetry() (telemetryMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.received.IsZero() || time.Since(c.received) > c.maxAge {
		return telemetryMsg{}, false
	}
	return c.telemetry, true
}
