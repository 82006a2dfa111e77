// Command whackamole drives four button/LED pairs, serves the command
// channel over HTTP and bridges presses and indicator state to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sweeney/whackamole/internal/channel"
	"github.com/sweeney/whackamole/internal/config"
	"github.com/sweeney/whackamole/internal/controller"
	"github.com/sweeney/whackamole/internal/discovery"
	"github.com/sweeney/whackamole/internal/gpio"
	"github.com/sweeney/whackamole/internal/logic"
	"github.com/sweeney/whackamole/internal/mqtt"
	"github.com/sweeney/whackamole/internal/status"
	"github.com/sweeney/whackamole/internal/web"
)

func main() {
	if err := newRootCmd(run).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command line overrides. Only flags the user set are applied.
type flags struct {
	configPath string
	chip       string
	broker     string
	httpAddr   string
	readMode   string
	debounce   time.Duration
	poll       time.Duration
	logLevel   string
	logFormat  string
}

func (f *flags) register(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVarP(&f.configPath, "config", "c", "", "config file path")
	fs.StringVar(&f.chip, "chip", def.GPIO.Chip, "GPIO chip name")
	fs.StringVar(&f.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&f.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.StringVar(&f.readMode, "read-mode", def.Channel.ReadMode.String(), "channel read mode (event, status)")
	fs.DurationVar(&f.debounce, "debounce", def.GPIO.Debounce, "debounce window shared by all buttons")
	fs.DurationVar(&f.poll, "poll", def.Channel.Poll, "MQTT bridge polling interval")
	fs.StringVar(&f.logLevel, "log-level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", def.Log.Format, "log format (text, json)")
}

// load reads the config file then applies any flags the user set.
func (f *flags) load(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if fs.Changed("chip") {
		cfg.GPIO.Chip = f.chip
	}
	if fs.Changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	if fs.Changed("http") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if fs.Changed("read-mode") {
		m, err := channel.ParseMode(f.readMode)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: --read-mode: %w", config.ErrInvalid, err)
		}
		cfg.Channel.ReadMode = m
	}
	if fs.Changed("debounce") {
		cfg.GPIO.Debounce = f.debounce
	}
	if fs.Changed("poll") {
		cfg.Channel.Poll = f.poll
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newRootCmd(runFn func(config.Config, *logrus.Logger) error) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "whackamole",
		Short: "Whack-a-mole button and LED controller",
		Long: `whackamole owns four button/LED pairs on a GPIO chip. Button presses
toggle their LED and are reported through the command channel, which is
served at /channel over HTTP and bridged to MQTT.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd.Flags())
			if err != nil {
				return err
			}
			log := logrus.New()
			log.SetOutput(cmd.ErrOrStderr())
			if err := cfg.Log.Configure(log); err != nil {
				return err
			}
			return runFn(cfg, log)
		},
	}
	f.register(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd.Flags())
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return root
}

func pinsFrom(cfg config.Config) controller.Pins {
	return controller.Pins{Buttons: cfg.GPIO.Buttons, LEDs: cfg.GPIO.LEDs}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Chip:       cfg.GPIO.Chip,
		ButtonPins: cfg.GPIO.Buttons[:],
		LEDPins:    cfg.GPIO.LEDs[:],
		DebounceMs: cfg.GPIO.Debounce.Milliseconds(),
		PollMs:     cfg.Channel.Poll.Milliseconds(),
		ReadMode:   cfg.Channel.ReadMode.String(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
		MQTTPrefix: cfg.MQTT.Prefix,
	}
}

func advertise(cfg config.Config, log logrus.FieldLogger) (*discovery.Advertiser, error) {
	port, err := discovery.PortFromAddr(cfg.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("http addr %q: %w", cfg.HTTP.Addr, err)
	}
	return discovery.Start(discovery.Config{
		Instance: cfg.MDNS.Instance,
		Port:     port,
		TXT:      txtRecords(cfg),
	}, log)
}

func txtRecords(cfg config.Config) []string {
	return []string{
		"channel=/channel",
		"live=/ws",
		"read_mode=" + cfg.Channel.ReadMode.String(),
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	chip, err := gpio.NewRealChip(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("open gpio chip: %w", err)
	}
	defer chip.Close()

	ctrl := controller.New(chip, controller.Options{
		Pins:       pinsFrom(cfg),
		Refractory: cfg.GPIO.Debounce,
		Logger:     log,
	})
	if err := ctrl.Init(); err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	defer ctrl.Shutdown()

	tracker := status.NewTracker(ctrl.Store(), time.Now(), statusConfig(cfg))
	tracker.SetRunning(true)
	defer tracker.SetRunning(false)

	readCh := channel.New(ctrl.Store(), cfg.Channel.ReadMode, log)

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
		tick       <-chan time.Time
	)
	if cfg.MQTT.Broker != "" {
		onCommand := func(payload []byte) {
			if _, err := readCh.Write(payload); err != nil {
				log.WithError(err).Warn("mqtt command rejected")
			}
		}
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, mqtt.NewTopics(cfg.MQTT.Prefix), onCommand, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer rp.Close()
		publisher, mqttStatus = rp, rp

		ticker := time.NewTicker(cfg.Channel.Poll)
		defer ticker.Stop()
		tick = ticker.C

		tracker.SetMQTTConnected(rp.IsConnected())
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.WithError(err).Warn("failed to publish startup event")
		} else {
			log.Info("published startup event")
		}
	} else {
		log.Info("mqtt disabled")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, readCh, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", cfg.HTTP.Addr).Info("http status server listening")

		if cfg.MDNS.Enabled {
			if adv, err := advertise(cfg, log); err != nil {
				log.WithError(err).Warn("mdns advertisement unavailable")
			} else {
				defer adv.Stop()
			}
		}
	}

	log.WithFields(logrus.Fields{
		"chip":      cfg.GPIO.Chip,
		"buttons":   cfg.GPIO.Buttons,
		"leds":      cfg.GPIO.LEDs,
		"debounce":  cfg.GPIO.Debounce,
		"read_mode": cfg.Channel.ReadMode,
		"broker":    cfg.MQTT.Broker,
	}).Info("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	b := &bridge{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		now:        time.Now,
		log:        log,
	}
	return runLoop(b, tick, sigCh)
}

// bridge forwards presses and indicator changes to MQTT. Presses are
// detected from the store's press counters; the pending press is left for
// channel readers.
type bridge struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
	log        logrus.FieldLogger

	seen      logic.PressCounts
	last      logic.Indicators
	published bool
}

// poll publishes presses accepted since the previous poll, then the
// indicator states if they changed. A failed state publish is retried on
// the next poll.
func (b *bridge) poll() {
	t := b.now()
	if b.mqttStatus != nil {
		b.tracker.SetMQTTConnected(b.mqttStatus.IsConnected())
	}
	snap := b.tracker.Snapshot().Store

	for btn := logic.ButtonIndex(0); btn < logic.NumButtons; btn++ {
		for ; b.seen[btn] < snap.Presses[btn]; b.seen[btn]++ {
			b.log.WithFields(logrus.Fields{"button": int(btn), "color": btn.Color()}).Info("press")
			if err := b.publisher.PublishPress(mqtt.PressEvent{Timestamp: t, Button: btn}); err != nil {
				b.log.WithError(err).Warn("publish error")
			}
		}
	}

	if b.published && snap.Indicators == b.last {
		return
	}
	if err := b.publisher.PublishState(mqtt.StateEvent{Timestamp: t, Indicators: snap.Indicators}); err != nil {
		b.log.WithError(err).Warn("publish error")
		return
	}
	b.last, b.published = snap.Indicators, true
}

// shutdown publishes the retained SHUTDOWN event for s.
func (b *bridge) shutdown(s os.Signal) {
	name := signalName(s)
	b.log.WithField("signal", name).Info("shutting down")
	if b.publisher == nil {
		return
	}
	if b.mqttStatus != nil {
		b.tracker.SetMQTTConnected(b.mqttStatus.IsConnected())
	}
	event := mqtt.SystemEvent{
		Timestamp:  b.now(),
		Event:      "SHUTDOWN",
		Reason:     name,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(b.tracker.Snapshot(), "SHUTDOWN", name),
	}
	if err := b.publisher.PublishSystem(event); err != nil {
		b.log.WithError(err).Warn("failed to publish shutdown event")
	} else {
		b.log.Info("published shutdown event")
	}
}

// runLoop polls the bridge on every tick until a signal arrives. A bridge
// without a publisher only waits for the signal.
func runLoop(b *bridge, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			b.shutdown(s)
			return nil
		case <-tick:
			if b.publisher != nil {
				b.poll()
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
