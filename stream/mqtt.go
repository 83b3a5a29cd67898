package stream

import (
	"fmt"
	"io"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewMQTTClient connects to broker (e.g. "tcp://localhost:1883") and
// returns a ready-to-use paho client, the same one both ends of an
// MQTTDuplex pair are built from.
func NewMQTTClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("stream: mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return client, nil
}

// MQTTDuplex adapts a pair of MQTT topics — one this side publishes on,
// one it subscribes to — into a duplex byte stream. Message boundaries
// don't matter to the stream this exposes: every inbound publish is
// appended to an internal pipe and Read drains it the way it would a
// socket, so the session's own frame codec is unaffected by which
// transport carries it.
type MQTTDuplex struct {
	client         mqtt.Client
	publishTopic   string
	subscribeTopic string
	qos            byte
	pr             *io.PipeReader
	pw             *io.PipeWriter
}

// NewMQTTDuplex subscribes to subscribeTopic on client and returns a
// Duplex whose writes are published to publishTopic.
func NewMQTTDuplex(client mqtt.Client, publishTopic, subscribeTopic string, qos byte) (*MQTTDuplex, error) {
	pr, pw := io.Pipe()
	d := &MQTTDuplex{
		client:         client,
		publishTopic:   publishTopic,
		subscribeTopic: subscribeTopic,
		qos:            qos,
		pr:             pr,
		pw:             pw,
	}

	token := client.Subscribe(subscribeTopic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		_, _ = d.pw.Write(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	return d, nil
}

func (d *MQTTDuplex) Read(p []byte) (int, error) {
	return d.pr.Read(p)
}

func (d *MQTTDuplex) Write(p []byte) (int, error) {
	token := d.client.Publish(d.publishTopic, d.qos, false, p)
	token.Wait()
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *MQTTDuplex) Close() error {
	d.client.Unsubscribe(d.subscribeTopic)
	return d.pw.Close()
}
