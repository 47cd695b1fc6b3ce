package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelkeep/internal/config"
	"modelkeep/internal/engine"
	"modelkeep/internal/hardware"
	"modelkeep/internal/httpapi"
	"modelkeep/internal/metacache"
	"modelkeep/internal/persona"
	"modelkeep/internal/raminfo"
	"modelkeep/internal/registry"
	"modelkeep/internal/session"
	"modelkeep/internal/tts"
	"modelkeep/pkg/types"
)

// app bundles the wired subsystems behind the CLI commands.
type app struct {
	cfg  config.Config
	log  zerolog.Logger
	reg  *registry.Registry
	mon  *hardware.Monitor
	sess *session.Session
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// buildApp loads configuration, indexes the models directory and wires
// a session. Every command goes through here.
func buildApp(cfgPath, logLevel string) (*app, error) {
	var cfg config.Config
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
	}
	cfg = cfg.WithDefaults()
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := newLogger(cfg.LogLevel)

	cache := metacache.New(cfg.CachePath, log)
	cache.LoadAll()

	reg, err := registry.New(cfg.ModelsDir, cache, log)
	if err != nil {
		return nil, err
	}
	if _, err := reg.Reindex(); err != nil {
		return nil, err
	}

	mon := hardware.NewMonitor(log)
	sess := session.New(session.Config{
		Registry:      reg,
		Engine:        engine.NewLlamaEngine(),
		Monitor:       mon,
		LastUsedPath:  cfg.LastUsedPath,
		GPULayers:     cfg.GPULayers,
		ContextLength: cfg.ContextLength,
		Threads:       cfg.Threads,
		Params:        cfg.GenParams(),
		Logger:        log,
	})

	return &app{cfg: cfg, log: log, reg: reg, mon: mon, sess: sess}, nil
}

// apiService adapts the wired subsystems to the HTTP layer.
type apiService struct{ a *app }

func (s apiService) ListModels() []types.ModelDescriptor { return s.a.reg.List() }

func (s apiService) Reindex() ([]types.ModelDescriptor, error) { return s.a.reg.Reindex() }

func (s apiService) LoadByIndex(ctx context.Context, index, gpuLayers int) (types.ActiveInfo, error) {
	return s.a.sess.LoadByIndex(ctx, index, gpuLayers)
}

func (s apiService) LoadLast(ctx context.Context) (types.ActiveInfo, error) {
	return s.a.sess.LoadLast(ctx)
}

func (s apiService) ActiveInfo() (types.ActiveInfo, error) { return s.a.sess.ActiveInfo() }

func (s apiService) ApplyParams(p types.GenParams) error { return s.a.sess.ApplyParams(p) }

func (s apiService) HardwareStatus() types.HardwareStatus {
	if info, err := s.a.sess.ActiveInfo(); err == nil {
		return info.Hardware
	}
	return types.HardwareStatus{
		Mode:            types.ModeCPU,
		CapabilityProbe: s.a.mon.ProbeCapability(),
		CheckedAt:       time.Now(),
	}
}

func (s apiService) Ready() bool { return s.a.sess.Loaded() }

func buildRootCmd() *cobra.Command {
	var cfgPath, logLevel string

	root := &cobra.Command{
		Use:           "modelkeep",
		Short:         "Index, inspect and keep local GGUF models loaded",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (.yaml|.json|.toml)")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil {
			logLevel = f.Value.String()
		}
	}

	var corsOrigins string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath, logLevel)
			if err != nil {
				return err
			}
			defer a.sess.Close()
			if origins := splitCSV(corsOrigins); len(origins) > 0 {
				httpapi.SetCORSOptions(true, origins,
					[]string{"GET", "POST", "PUT", "OPTIONS"}, []string{"Content-Type"})
			}
			return runServer(a)
		},
	}
	serveCmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "Comma-separated list of allowed CORS origins (empty disables CORS)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed models",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath, logLevel)
			if err != nil {
				return err
			}
			for _, m := range a.reg.List() {
				fmt.Printf("%3d  %-40s %-8s %-10s ctx=%d\n",
					m.Index, m.Name, m.Quantization, m.Architecture, m.ContextLength)
			}
			return nil
		},
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rescan the models directory and refresh the metadata cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath, logLevel)
			if err != nil {
				return err
			}
			models, err := a.reg.Reindex()
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d models in %s\n", len(models), a.reg.Dir())
			return nil
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load <index|last>",
		Short: "Load a model and print the resulting session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath, logLevel)
			if err != nil {
				return err
			}
			defer a.sess.Close()
			ctx := cmd.Context()
			var info types.ActiveInfo
			if args[0] == "last" {
				info, err = a.sess.LoadLast(ctx)
			} else {
				var n int
				n, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("argument must be a model index or 'last'")
				}
				info, err = a.sess.LoadByIndex(ctx, n, session.UseDefaultLayers)
			}
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info <index>",
		Short: "Print full metadata and RAM estimate for one model, without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath, logLevel)
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("argument must be a model index")
			}
			desc, err := a.reg.ByIndex(n)
			if err != nil {
				return err
			}
			return printJSON(struct {
				types.ModelDescriptor
				RAMEstimateMB int    `json:"ram_estimate_mb"`
				RAMEstimate   string `json:"ram_estimate"`
			}{
				ModelDescriptor: desc,
				RAMEstimateMB:   raminfo.EstimateMB(desc.Quantization, desc.ContextLength),
				RAMEstimate:     raminfo.Format(desc.Quantization, desc.ContextLength),
			})
		},
	}

	hardwareCmd := &cobra.Command{
		Use:   "hardware",
		Short: "Report acceleration capability of this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)
			mon := hardware.NewMonitor(log)
			return printJSON(map[string]any{
				"capability_probe": mon.ProbeCapability(),
			})
		},
	}

	root.AddCommand(serveCmd, listCmd, reindexCmd, loadCmd, infoCmd, hardwareCmd)
	return root
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runServer(a *app) error {
	httpapi.SetLogger(a.log)
	if a.cfg.PersonaDir != "" {
		store, err := persona.LoadDir(a.cfg.PersonaDir, a.cfg.GenParams(), a.log)
		if err != nil {
			return fmt.Errorf("load personas: %w", err)
		}
		httpapi.SetPersonaStore(store)
	}
	if a.cfg.TTSBaseURL != "" {
		httpapi.SetTTSClient(tts.NewClient(a.cfg.TTSBaseURL))
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(apiService{a: a})
	srv := &http.Server{Addr: a.cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Str("models_dir", a.reg.Dir()).Msg("modelkeep listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("graceful shutdown")
	}
	return nil
}
