package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/garage-door/internal/config"
	"github.com/sweeney/garage-door/internal/door"
	"github.com/sweeney/garage-door/internal/gpio"
	"github.com/sweeney/garage-door/internal/monitor"
	"github.com/sweeney/garage-door/internal/mqtt"
	"github.com/sweeney/garage-door/internal/notify"
	"github.com/sweeney/garage-door/internal/status"
	"github.com/sweeney/garage-door/internal/web"
)

// webCommandQueue bounds commands posted over HTTP and not yet executed.
const webCommandQueue = 8

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the door daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := run(cfg); err != nil {
				log.Printf("fatal: %v", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func run(cfg *config.Config) error {
	// Initialize GPIO
	reader, err := gpio.NewRealReader(cfg.Chip, cfg.InputLines())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.Broker)
	defer publisher.Close()

	// Initialize status tracker (before the doors publish their first status)
	ws := resolveWSBroker(cfg.WSBroker, cfg.Broker)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTP,
		WSBroker:    ws,
		LogTracks:   cfg.LogTracks,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var notifier door.Notifier = notify.Log{}
	if cfg.Notify.SlackToken != "" {
		slack, err := notify.NewSlack(cfg.Notify.SlackToken, cfg.Notify.SlackChannel)
		if err != nil {
			log.Printf("slack disabled: %v", err)
		} else {
			defer slack.Close()
			notifier = slack
		}
	}

	openRelay := func(line int) (gpio.Relay, error) {
		return gpio.NewRealRelay(cfg.Chip, line)
	}
	mon, relays, err := buildMonitor(cfg, openRelay, monitor.Options{
		Reader:    reader,
		Publisher: monitor.Publishers{publisher, tracker},
		Tracks:    tracker,
		Notifier:  notifier,
	})
	defer closeRelays(relays)
	if err != nil {
		return err
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	var webCommands chan mqtt.Command
	if cfg.HTTP != "" {
		if cfg.HTTPToken != "" {
			webCommands = make(chan mqtt.Command, webCommandQueue)
		}
		srv := web.New(cfg.HTTP, tracker, webCommands, cfg.HTTPToken)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: doors=%d poll=%v broker=%s heartbeat=%v", len(cfg.Doors), cfg.Poll, cfg.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(mon, publisher, publisher, publisher.Commands(), webCommands, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

// buildMonitor registers every configured door. Input indexes follow
// cfg.InputLines. Relays are opened with openRelay; a nil openRelay leaves
// every door without outputs. The opened relays are returned even on error
// so the caller can release them.
func buildMonitor(cfg *config.Config, openRelay func(line int) (gpio.Relay, error), opts monitor.Options) (*monitor.Monitor, []gpio.Relay, error) {
	mon := monitor.New(opts)
	var opened []gpio.Relay
	open := func(rc *config.RelayConfig, what, doorName string) (gpio.Relay, error) {
		if rc == nil || openRelay == nil {
			return nil, nil
		}
		r, err := openRelay(rc.Line)
		if err != nil {
			return nil, fmt.Errorf("door %q: open %s on line %d: %w", doorName, what, rc.Line, err)
		}
		opened = append(opened, r)
		return r, nil
	}

	index := 0
	for _, dc := range cfg.Doors {
		var inputs []monitor.Input
		for _, in := range dc.Inputs() {
			inputs = append(inputs, monitor.Input{Role: in.Role, Index: index})
			index++
		}

		var relays monitor.Relays
		var err error
		if relays.Activation, err = open(dc.Relay, "activation relay", dc.Name); err != nil {
			return nil, opened, err
		}
		if dc.Relay != nil {
			relays.Pulse = dc.Relay.Pulse
		}
		if relays.Power, err = open(dc.PowerRelay, "power relay", dc.Name); err != nil {
			return nil, opened, err
		}
		if relays.Lock, err = open(dc.LockRelay, "lock relay", dc.Name); err != nil {
			return nil, opened, err
		}

		if _, err := mon.AddDoor(dc.Door(cfg.LogTracks), inputs, relays); err != nil {
			return nil, opened, err
		}
	}
	return mon, opened, nil
}

func closeRelays(relays []gpio.Relay) {
	var errs []error
	for _, r := range relays {
		errs = append(errs, r.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("release relays: %v", err)
	}
}

func runLoop(mon *monitor.Monitor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, commands, webCommands <-chan mqtt.Command, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime
	doors := make(map[string]string) // slug -> name
	for _, d := range mon.Doors() {
		doors[mqtt.Slug(d.Name())] = d.Name()
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case c := <-commands:
			handleCommand(mon, doors, c)

		case c := <-webCommands:
			handleCommand(mon, doors, c)

		case <-tick:
			t := now()
			if err := mon.Poll(t); err != nil {
				log.Printf("gpio read error: %v", err)
				continue
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				log.Printf("heartbeat: uptime=%v doors=%d", t.Sub(startTime).Truncate(time.Second), len(doors))

				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// handleCommand runs a command received for a door slug. Failures are logged;
// the door's published status shows the outcome.
func handleCommand(mon *monitor.Monitor, doors map[string]string, c mqtt.Command) {
	name, ok := doors[c.Door]
	if !ok {
		log.Printf("command %s for unknown door %q ignored", c.Action, c.Door)
		return
	}
	if err := mon.Command(name, monitor.Command(c.Action)); err != nil {
		log.Printf("command %s for %q failed: %v", c.Action, name, err)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws_broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
