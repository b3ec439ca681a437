package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"heliodon/internal/models"
)

// Message is the payload published for every tracked position
type Message struct {
	Location models.GeoLocation      `json:"location"`
	Position models.SunPosition      `json:"position"`
	Command  *models.ActuatorCommand `json:"command,omitempty"`
	Error    string                  `json:"device_error,omitempty"`
}

// Publisher sends tracking telemetry to an MQTT broker
type Publisher struct {
	client mqtt.Client
	topic  string
}

// ClientConfig holds MQTT publisher configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g., "heliodon/sun"
}

func NewPublisher(config ClientConfig) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetOnConnectHandler(connectHandler)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("Connected to MQTT broker:", config.Broker)

	return newPublisher(client, config.Topic), nil
}

func newPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Publish sends one message, retained so late subscribers see the current position
func (p *Publisher) Publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	token := p.client.Publish(p.topic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing to %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
	log.Println("Disconnected from MQTT broker")
}

func connectHandler(client mqtt.Client) {
	log.Println("MQTT connection established")
}

func connectLostHandler(client mqtt.Client, err error) {
	log.Printf("MQTT connection lost: %v", err)
}
