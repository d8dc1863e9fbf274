package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/extropian/motionsync/internal/adapters/fs"
	httpAdapter "github.com/extropian/motionsync/internal/adapters/http"
	"github.com/extropian/motionsync/internal/adapters/influx"
	"github.com/extropian/motionsync/internal/adapters/mqtt"
	"github.com/extropian/motionsync/internal/adapters/serial"
	"github.com/extropian/motionsync/internal/adapters/sqlite"
	"github.com/extropian/motionsync/internal/cliconfig"
	"github.com/extropian/motionsync/internal/link"
	"github.com/extropian/motionsync/internal/ports"
)

// buildLink opens the configured transport. Real transports are wrapped in
// link.Retrying. The returned cleanup is never nil.
func buildLink(ctx context.Context, cfg cliconfig.Config, logger ports.Logger) (ports.Link, func(), error) {
	retry := link.RetryConfig{
		Attempts: cfg.ConnectAttempts,
		Timeout:  cfg.ConnectTimeout,
	}

	switch cfg.Link {
	case cliconfig.LinkMemory:
		assignments, err := cfg.Assignments()
		if err != nil {
			return nil, nil, err
		}
		return simulatedFleet(assignments, cfg.ExpectedPackets, nil), func() {}, nil

	case cliconfig.LinkMQTT:
		mc := mqtt.DefaultConfig()
		mc.Broker = cfg.MQTTBroker
		mc.ClientID = cfg.MQTTClientID
		mc.TopicPrefix = cfg.MQTTTopicPrefix
		mc.QoS = byte(cfg.MQTTQoS)
		mc.ConnectTimeout = cfg.ConnectTimeout
		l, client, err := mqtt.Dial(ctx, mc, logger)
		if err != nil {
			return nil, nil, err
		}
		return link.NewRetrying(l, retry, logger), func() { client.Disconnect(250) }, nil

	case cliconfig.LinkSerial:
		l, err := serial.Open(cfg.SerialPort, serial.PortOptions{BaudRate: cfg.SerialBaud}, logger)
		if err != nil {
			return nil, nil, err
		}
		return link.NewRetrying(l, retry, logger), func() { _ = l.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown link %q", cfg.Link)
}

// buildSink opens the configured session sink. The returned cleanup is never nil.
func buildSink(cfg cliconfig.Config, logger ports.Logger) (ports.SessionSink, func(), error) {
	switch cfg.Sink {
	case cliconfig.SinkFile:
		return fs.NewSessionFileSink(cfg.OutputDir), func() {}, nil

	case cliconfig.SinkHTTP:
		client := &http.Client{Timeout: cfg.HTTPTimeout}
		return httpAdapter.NewDocumentSink(client, cfg.ServiceURL, cfg.AuthKey, logger), func() {}, nil

	case cliconfig.SinkSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case cliconfig.SinkInflux:
		sink, closeFn, err := influx.Dial(influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown sink %q", cfg.Sink)
}

// simulatedFleet registers one synthetic device per assignment, each with
// packets frames queued for the drain command.
func simulatedFleet(assignments []cliconfig.Assignment, packets int, opts map[string]link.DeviceOptions) *link.Fleet {
	fleet := link.NewFleet()
	for i, a := range assignments {
		d := fleet.Add(a.DeviceID, opts[a.DeviceID])
		d.Queue(link.SyntheticFrames(packets, 0, float64(i))...)
	}
	return fleet
}
