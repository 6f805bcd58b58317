package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"google.golang.org/genai"

	"github.com/AltairaLabs/livevoice/capture"
	"github.com/AltairaLabs/livevoice/config"
	"github.com/AltairaLabs/livevoice/device"
	"github.com/AltairaLabs/livevoice/internal/tui"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/metrics"
	"github.com/AltairaLabs/livevoice/playback"
	"github.com/AltairaLabs/livevoice/session"
	"github.com/AltairaLabs/livevoice/telemetry"
	"github.com/AltairaLabs/livevoice/transport"
	"github.com/AltairaLabs/livevoice/transport/gemini"
	"github.com/AltairaLabs/livevoice/transport/genailive"
)

const (
	shutdownTimeout = 5 * time.Second
	serviceName     = "livevoice"
	toneFrequency   = 220
	toneAmplitude   = 0.05
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive voice session",
	Long: `Start a live voice session. In the terminal UI press s to start or stop
talking to the model and q to quit. With --headless the session starts
immediately and turns are printed until interrupted.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringP("config", "c", "", "Path to a YAML config file")
	flags.String("model", "", "Model name")
	flags.String("voice", "", "Prebuilt voice name")
	flags.String("system", "", "System instruction")
	flags.String("backend", "", "Transport backend: websocket or genai")
	flags.String("endpoint", "", "Override the backend endpoint URL")
	flags.Duration("connect-timeout", 0, "Fail if the session does not open in time (0 waits forever)")
	flags.Int("dial-attempts", 0, "Connection attempts before giving up")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("otlp-endpoint", "", "Export traces to this OTLP/HTTP endpoint")
	flags.Float64("trace-sample-ratio", 0, "Fraction of sessions traced (0 or 1 traces all)")
	flags.String("log-file", "", "Write logs to this file")
	flags.Bool("headless", false, "Run without the terminal UI")

	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("system_instruction", flags.Lookup("system"))
	_ = viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("endpoint", flags.Lookup("endpoint"))
	_ = viper.BindPFlag("connect_timeout", flags.Lookup("connect-timeout"))
	_ = viper.BindPFlag("dial_attempts", flags.Lookup("dial-attempts"))
	_ = viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	_ = viper.BindPFlag("telemetry.otlp_endpoint", flags.Lookup("otlp-endpoint"))
	_ = viper.BindPFlag("telemetry.sample_ratio", flags.Lookup("trace-sample-ratio"))
	_ = viper.BindPFlag("log.file", flags.Lookup("log-file"))
}

func runSession(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	headless, _ := cmd.Flags().GetBool("headless")
	if !headless && !isTerminal(os.Stdout) {
		headless = true
	}

	cfg, err := config.Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg, headless)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Debug("config loaded", "config", fmt.Sprintf("%+v", cfg.Redacted()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	mic, newOutput, closeAudio, err := buildAudio(cfg)
	if err != nil {
		return err
	}
	defer closeAudio()

	opts = append(opts,
		session.WithSessionConfig(cfg.TransportConfig()),
		session.WithBlockSize(cfg.Capture.BlockSize),
		session.WithConnectTimeout(cfg.ConnectTimeout),
	)
	ctrl := session.New(tr, mic, newOutput, opts...)
	defer ctrl.Stop()

	return serve(ctx, cmd.OutOrStdout(), cfg, ctrl, headless)
}

// serve runs the UI and, when configured, the metrics endpoint until the
// UI exits or ctx ends.
func serve(ctx context.Context, out io.Writer, cfg *config.Config, ctrl *session.Controller, headless bool) error {
	g, gctx := errgroup.WithContext(ctx)
	uiCtx, uiDone := context.WithCancel(gctx)

	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewExporter(cfg.Metrics.Addr)
		g.Go(func() error {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-uiCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return exporter.Shutdown(shutdownCtx)
		})
		logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
	}

	g.Go(func() error {
		defer uiDone()
		if headless {
			return runHeadless(uiCtx, out, ctrl)
		}
		return tui.Run(uiCtx, ctrl, tui.Info{Model: cfg.Model, Voice: cfg.Voice})
	})

	return g.Wait()
}

// runHeadless starts one session and prints turns until it ends.
func runHeadless(ctx context.Context, out io.Writer, ctrl *session.Controller) error {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	var (
		printed    int
		lastStatus string
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			if snap.Status != lastStatus && snap.Status != "" {
				fmt.Fprintf(out, "[%s] %s\n", snap.State, snap.Status)
				lastStatus = snap.Status
			}
			for ; printed < len(snap.History); printed++ {
				turn := snap.History[printed]
				if turn.User != "" {
					fmt.Fprintf(out, "You: %s\n", turn.User)
				}
				if turn.Model != "" {
					fmt.Fprintf(out, "Gemini: %s\n", turn.Model)
				}
			}
			switch snap.State {
			case session.Closed:
				return nil
			case session.Errored, session.Idle:
				return errors.New(snap.Status)
			}
		}
	}
}

// isTerminal reports whether f is attached to a terminal. The full-screen UI
// needs one; otherwise the session runs headless.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setupLogging applies the configured level and destination. The terminal
// UI owns the screen, so without a log file logs are dropped there.
func setupLogging(cfg *config.Config, headless bool) (func(), error) {
	if cfg.Log.Level != "" {
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}
	switch {
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		return func() {
			logger.SetOutput(os.Stderr)
			_ = f.Close()
		}, nil
	case !headless:
		logger.SetOutput(io.Discard)
		return func() { logger.SetOutput(os.Stderr) }, nil
	}
	return func() {}, nil
}

func setupTracing(ctx context.Context, cfg *config.Config) ([]session.Option, func(), error) {
	telemetry.SetupPropagation()
	if cfg.Telemetry.OTLPEndpoint == "" {
		return nil, func() {}, nil
	}
	tp, flush, err := telemetry.NewTracerProvider(ctx, telemetry.ProviderConfig{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: GetVersion(),
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := flush(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}
	return []session.Option{session.WithTracer(telemetry.Tracer(tp))}, shutdown, nil
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Backend {
	case config.BackendWebSocket:
		var opts []gemini.Option
		if cfg.Endpoint != "" {
			opts = append(opts, gemini.WithEndpoint(cfg.Endpoint))
		}
		return gemini.New(cfg.APIKey, opts...), nil
	case config.BackendGenAI:
		clientCfg := &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.Endpoint != "" {
			clientCfg.HTTPOptions.BaseURL = cfg.Endpoint
		}
		return genailive.NewWithConfig(clientCfg), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// buildAudio picks hardware devices when compiled in, otherwise a test tone
// and a virtual speaker.
func buildAudio(cfg *config.Config) (capture.Microphone, session.OutputFactory, func(), error) {
	rate := cfg.Playback.SampleRate
	if !device.Available {
		logger.Warn("built without audio hardware support; using a test tone and a silent speaker")
		mic := capture.Generator{Frequency: toneFrequency, Amplitude: toneAmplitude, Realtime: true}
		return mic, func() (playback.Output, error) {
			return device.NewVirtualSpeaker(rate, 0), nil
		}, func() {}, nil
	}

	terminate, err := device.Init()
	if err != nil {
		return nil, nil, nil, err
	}
	return device.Microphone{}, func() (playback.Output, error) {
		return device.NewSpeaker(rate)
	}, terminate, nil
}
