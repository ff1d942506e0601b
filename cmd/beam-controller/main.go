// Command beam-controller drives an auxiliary vehicle light from the request
// switch, battery voltage and ambient light, and reports state over MQTT.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/beam-controller/internal/adc"
	"github.com/sweeney/beam-controller/internal/config"
	"github.com/sweeney/beam-controller/internal/diag"
	"github.com/sweeney/beam-controller/internal/gpio"
	"github.com/sweeney/beam-controller/internal/logic"
	"github.com/sweeney/beam-controller/internal/mqtt"
	"github.com/sweeney/beam-controller/internal/pwm"
	"github.com/sweeney/beam-controller/internal/status"
	"github.com/sweeney/beam-controller/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		cfg        config.Config
	)

	root := &cobra.Command{
		Use:   "beam-controller",
		Short: "Auxiliary light controller",
		Long: `beam-controller switches and dims an auxiliary light from the request
switch, battery voltage and ambient light level.

Settings are read from defaults, then --config, then BEAM_* environment
variables, then flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath, cmd.Flags(), os.LookupEnv)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")
	scratch := config.Default()
	scratch.BindFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the controller daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "print-state",
		Short: "Read the inputs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printState(cfg, cmd.OutOrStdout())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "diag",
		Short: "Interactive diagnostic console on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiag(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "calibration",
		Short: "Print the effective calibration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cfg.MarshalCalibration()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return root
}

func openInputs(cfg config.Config) (gpio.Reader, adc.Reader, error) {
	request, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.RequestPin, cfg.GPIO.RequestActiveLow)
	if err != nil {
		return nil, nil, fmt.Errorf("init request line: %w", err)
	}
	analog, err := adc.NewIIOReader(cfg.ADC.Device, cfg.ADC.VoltageChannel, cfg.ADC.LightChannel, cfg.ADC.VoltageScale)
	if err != nil {
		request.Close()
		return nil, nil, fmt.Errorf("init adc: %w", err)
	}
	return request, analog, nil
}

func openOutput(cfg config.Config) (*pwm.Driver, error) {
	light, err := pwm.OpenSysfs(cfg.PWM.Chip, cfg.PWM.Channel, cfg.PWM.Period)
	if err != nil {
		return nil, fmt.Errorf("init pwm: %w", err)
	}

	var indicator gpio.Writer
	if cfg.GPIO.IndicatorPin >= 0 {
		w, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.IndicatorPin)
		if err != nil {
			light.Close()
			return nil, fmt.Errorf("init indicator: %w", err)
		}
		indicator = w
	}

	return pwm.NewDriver(light, indicator, cfg.Calibration.MaxLevel, cfg.PWM.Inverted), nil
}

func readInitial(request gpio.Reader, analog adc.Reader) (logic.InitialSample, error) {
	var (
		s    logic.InitialSample
		err  error
		errs []error
	)
	if s.Voltage, err = analog.Voltage(); err != nil {
		errs = append(errs, fmt.Errorf("voltage: %w", err))
	}
	if s.Light, err = analog.Light(); err != nil {
		errs = append(errs, fmt.Errorf("light: %w", err))
	}
	if s.Request, err = request.Read(); err != nil {
		errs = append(errs, fmt.Errorf("request: %w", err))
	}
	return s, errors.Join(errs...)
}

func printState(cfg config.Config, w io.Writer) error {
	request, analog, err := openInputs(cfg)
	if err != nil {
		return err
	}
	defer request.Close()

	s, err := readInitial(request, analog)
	if err != nil {
		return fmt.Errorf("read inputs: %w", err)
	}
	fmt.Fprintf(w, "voltage: %.2f V, light: %.0f, request: %s\n", s.Voltage, s.Light, onOff(s.Request))
	return nil
}

func runDiag(cfg config.Config, in io.Reader, w io.Writer) error {
	request, analog, err := openInputs(cfg)
	if err != nil {
		return err
	}
	defer request.Close()

	out, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	fmt.Fprintln(w, "diagnostics: type help for commands")
	return diag.New(analog, request, out, cfg.Calibration.MaxLevel, 0, w).Run(in)
}

func run(cfg config.Config) error {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	request, analog, err := openInputs(cfg)
	if err != nil {
		return err
	}
	defer request.Close()

	out, err := openOutput(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn("close outputs", "error", err)
		}
	}()

	initial, err := readInitial(request, analog)
	if err != nil {
		return fmt.Errorf("initial sample: %w", err)
	}

	start := time.Now()
	ctrl, err := logic.NewController(cfg.Calibration, initial, start)
	if err != nil {
		return err
	}

	// Initialize MQTT
	var (
		publisher mqtt.Publisher
		conn      mqtt.ConnectionStatus
		commands  <-chan mqtt.Command
	)
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		defer p.Close()
		publisher, conn, commands = p, p, p.Commands()
	}

	tracker := status.NewTracker(start, status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		Calibration: cfg.Calibration,
	})

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	d := newDaemon(daemonConfig{
		ctrl:      ctrl,
		request:   request,
		analog:    analog,
		out:       out,
		publisher: publisher,
		conn:      conn,
		tracker:   tracker,
		logger:    logger,
		heartbeat: cfg.Heartbeat,
		console:   os.Stdout,
	})
	d.startup(initial, start)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.loop(time.Now, ticker.C, sigCh, readLines(os.Stdin), commands)
}

// readLines forwards lines from r until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// discardLogger is used when no logger is supplied.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
