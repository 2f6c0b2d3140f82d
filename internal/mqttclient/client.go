// Package mqttclient connects the worker to an MQTT broker: job submissions
// arrive on <prefix>/jobs/submit and job events and results are published
// back under <prefix>/jobs/<id>/.
package mqttclient

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-worker/internal/intake"
	"github.com/snarg/whisper-worker/internal/jobs"
	"github.com/snarg/whisper-worker/internal/metrics"
)

const publishTimeout = 5 * time.Second

// conn is the part of mqtt.Client the worker uses.
type conn interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Submission is the payload accepted on the submit topic.
type Submission struct {
	InputPath string `json:"input_path"`
	Language  string `json:"language,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

// Message is the envelope published on a job's events topic.
type Message struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Data  any    `json:"data"`
}

type Client struct {
	conn      conn
	prefix    string
	queue     intake.Enqueuer
	uploads   *intake.Uploads
	connected atomic.Bool
	log       zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Queue       intake.Enqueuer
	Uploads     *intake.Uploads // submitted paths must live under its directory
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix:  strings.TrimSuffix(opts.TopicPrefix, "/"),
		queue:   opts.Queue,
		uploads: opts.Uploads,
		log:     opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	c.conn = client
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SubmitTopic is the topic job submissions are read from.
func (c *Client) SubmitTopic() string { return c.prefix + "/jobs/submit" }

// EventsTopic is where a job's lifecycle and transcript events are published.
func (c *Client) EventsTopic(jobID string) string { return c.prefix + "/jobs/" + jobID + "/events" }

// ResultTopic is where a job's final result is published.
func (c *Client) ResultTopic(jobID string) string { return c.prefix + "/jobs/" + jobID + "/result" }

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.SubmitTopic()).Msg("mqtt connected, subscribing")

	token := client.Subscribe(c.SubmitTopic(), 1, c.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.handleSubmit(msg.Topic(), msg.Payload())
}

// handleSubmit queues the job described by payload. Malformed submissions and
// a full queue are logged and dropped; the broker gets no reply for them.
func (c *Client) handleSubmit(topic string, payload []byte) {
	metrics.MQTTMessagesTotal.Inc()

	var sub Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("invalid job submission")
		return
	}
	if sub.InputPath == "" {
		c.log.Warn().Str("topic", topic).Msg("job submission without input_path")
		return
	}

	// The job deletes its input when done, so only files in the records
	// directory are accepted.
	path, ok := c.uploads.Owns(sub.InputPath)
	if !ok {
		c.log.Warn().Str("input", sub.InputPath).Str("records_dir", c.uploads.Dir()).
			Msg("job submission outside records dir rejected")
		return
	}

	t, ok := intake.Submit(c.queue, jobs.Job{
		InputPath: path,
		Source:    jobs.SourceMQTT,
		Language:  sub.Language,
		Prompt:    sub.Prompt,
	})
	if !ok {
		c.log.Warn().Str("input", sub.InputPath).Msg("job queue full, submission dropped")
		return
	}
	c.log.Info().
		Str("job_id", t.Job().ID).
		Str("input", sub.InputPath).
		Msg("mqtt job queued")
}

// Publish forwards a job notification to the broker. Its signature matches
// jobs.PublishFunc. Nothing is sent while disconnected.
func (c *Client) Publish(eventType, jobID string, payload any) {
	if !c.IsConnected() {
		return
	}

	topic := c.EventsTopic(jobID)
	var body any = Message{Type: eventType, JobID: jobID, Data: payload}
	if eventType == jobs.EventJobResult {
		topic = c.ResultTopic(jobID)
		body = payload
	}

	data, err := json.Marshal(body)
	if err != nil {
		c.log.Error().Err(err).Str("event", eventType).Msg("failed to encode mqtt payload")
		return
	}

	token := c.conn.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		c.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
	}
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
