package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Agrid-Dev/thermocarlo/internal/ports"
)

type Config struct {
	// Identity
	InstanceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainReport    bool
	PublishInterval time.Duration

	Username string
	Password string

	Logger *slog.Logger
}

type Controller struct {
	svc ports.SimulationService
	cfg Config
	log *slog.Logger

	client mqtt.Client
	ctx    context.Context
}

func New(svc ports.SimulationService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.InstanceID == "" {
		return nil, errors.New("mqtt: InstanceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "thermocarlo/" + cfg.InstanceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "thermocarlo-" + cfg.InstanceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: log.With("controller", "mqtt"),
		ctx: context.Background(),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		// A run blocks its handler; let paho dispatch commands concurrently.
		SetOrderMatters(false)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("subscribe failed", "topic", topic, "err", err)
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish the latest report whenever a new one appears.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	lastID := c.publishLatest("")

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			lastID = c.publishLatest(lastID)
		}
	}
}

// publishLatest publishes the latest report if its ID differs from lastID
// and returns the ID now considered published.
func (c *Controller) publishLatest(lastID string) string {
	rep, ok := c.svc.Latest()
	if !ok || rep.ID == lastID {
		return lastID
	}
	dto := ports.ToReportDTO(rep)
	dto.InstanceID = c.cfg.InstanceID
	c.publishReport(dto)
	return rep.ID
}

func (c *Controller) publishReport(dto ports.ReportDTO) {
	b, err := json.Marshal(dto)
	if err != nil {
		c.log.Error("encode report", "err", err)
		return
	}
	c.client.Publish(c.topic("report"), c.cfg.QoS, c.cfg.RetainReport, b)
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := strings.TrimRight(c.cfg.BaseTopic, "/") + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	switch field {
	case "runs":
		v, err := decodeValueStrict[int](payload)
		if err != nil {
			c.log.Warn("bad command", "field", field, "err", err)
			return
		}
		if err := c.svc.SetRuns(v); err != nil {
			c.log.Warn("set runs rejected", "value", v, "err", err)
		}

	case "seed":
		v, err := decodeValueStrict[int64](payload)
		if err != nil {
			c.log.Warn("bad command", "field", field, "err", err)
			return
		}
		c.svc.SetSeed(v)

	case "run":
		dto, err := decodeRunRequest(payload)
		if err != nil {
			c.log.Warn("bad command", "field", field, "err", err)
			return
		}
		req, err := dto.Apply(c.svc.Defaults())
		if err == nil {
			err = req.Validate()
		}
		if err != nil {
			c.log.Warn("run rejected", "err", err)
			return
		}
		rep, err := c.svc.Run(c.ctx, req)
		if err != nil {
			c.log.Warn("run failed", "err", err)
			return
		}
		out := ports.ToReportDTO(rep)
		out.InstanceID = c.cfg.InstanceID
		c.publishReport(out)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}

// decodeRunRequest accepts an empty payload as "run with defaults".
func decodeRunRequest(b []byte) (ports.RunRequestDTO, error) {
	var dto ports.RunRequestDTO
	if len(bytes.TrimSpace(b)) == 0 {
		return dto, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return dto, err
	}
	return dto, nil
}
