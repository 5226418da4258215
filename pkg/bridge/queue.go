// Package bridge mirrors bus telemetry onto MQTT so ground-side tools
// can watch a node without a CAN adapter.
package bridge

import (
	"net/url"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler is the callback for a received message.
type Handler func(topic string, payload []byte)

// Queue wraps the MQTT client with a topic prefix.
type Queue struct {
	Client      paho.Client
	TopicPrefix string
}

// ClientOptionsFromURL builds paho options from an URL of the form
// mqtt://host:port/topic-prefix.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, topicPrefix, nil
}

// NewQueueFromURL creates a connected-on-demand Queue from an URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	q := &Queue{TopicPrefix: topicPrefix}
	q.Client = paho.NewClient(opts)
	return q, nil
}

// Connect connects the client and waits for the result.
func (q *Queue) Connect() error {
	token := q.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(0)
	return nil
}

// Pub publishes payload under the prefixed topic.
func (q *Queue) Pub(topic string, payload []byte) {
	token := q.Client.Publish(q.TopicPrefix+topic, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			glog.Errorf("mqtt publish %s: %v", topic, err)
		}
	}()
}

// Sub subscribes handler to the prefixed topic.
func (q *Queue) Sub(topic string, handler Handler) error {
	token := q.Client.Subscribe(q.TopicPrefix+topic, 0, func(_ paho.Client, m paho.Message) {
		handler(strings.TrimPrefix(m.Topic(), q.TopicPrefix), m.Payload())
	})
	token.Wait()
	return token.Error()
}
