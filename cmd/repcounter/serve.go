package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/repcounter/internal/app"
	"github.com/ayusman/repcounter/internal/capture"
	"github.com/ayusman/repcounter/internal/config"
	"github.com/ayusman/repcounter/internal/emitter"
	"github.com/ayusman/repcounter/internal/pipeline"
	"github.com/ayusman/repcounter/internal/pose"
	"github.com/ayusman/repcounter/internal/server"
	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/store"
	"github.com/ayusman/repcounter/internal/stream"
	"github.com/ayusman/repcounter/internal/tray"
	"github.com/ayusman/repcounter/internal/video"
)

var serveOpts struct {
	camera bool
	tray   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server, websocket stream and optional camera kiosk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveOpts.camera, "camera", false, "Count from the local camera (kiosk mode)")
	serveCmd.Flags().BoolVar(&serveOpts.tray, "tray", false, "Show the count in the system tray (requires --camera)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	// The kiosk and every stream client count together.
	if serveOpts.camera {
		cfg.Session.Shared = true
	}
	sessions, err := session.NewManager(cfg.Session, cfg.Counter, st, logger)
	if err != nil {
		return err
	}
	defer sessions.CloseAll()

	factory := pose.NewMediaPipeFactory(cfg.Pose)

	em := newEmitter(ctx, cfg.MQTT, logger)
	defer em.Close()
	sessions.OnRepetition(em.Notify)

	srvCfg := server.Config{
		StaticDir:         findStaticDir(cfg.Server.StaticDir),
		Store:             st,
		Sessions:          sessions,
		Frames:            stream.NewHandler(sessions, factory, logger),
		Runner:            video.NewRunner(cfg.Video, cfg.Counter, factory, video.WithLogger(logger)),
		OutputDir:         cfg.OutputDir(),
		MaxConcurrentJobs: cfg.Video.MaxConcurrentJobs,
		Logger:            logger,
	}
	if srvCfg.StaticDir != "" {
		logger.Info("serving static files", "dir", srvCfg.StaticDir)
	}

	var kiosk *app.Kiosk
	if serveOpts.camera {
		kiosk, err = startKiosk(cfg, sessions, factory, logger)
		if err != nil {
			return err
		}
		defer kiosk.Stop()
		srvCfg.Preview = kiosk
	}

	srv := server.New(srvCfg)
	timeout := time.Duration(cfg.Server.ShutdownTimeoutS) * time.Second

	if !serveOpts.tray || kiosk == nil {
		if serveOpts.tray {
			logger.Warn("--tray ignored without --camera")
		}
		return srv.ListenAndServe(ctx, cfg.Server.Addr, timeout)
	}

	// systray must own the main goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := newTray(kiosk, cfg.Server.Addr, cancel, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr, timeout)
		t.Quit()
	}()

	t.Run()
	cancel()
	return <-errCh
}

func newEmitter(ctx context.Context, cfg emitter.Config, logger *slog.Logger) emitter.Emitter {
	if cfg.Broker == "" {
		return emitter.Noop{}
	}

	em := emitter.NewMQTTEmitter(cfg)
	if err := em.Connect(ctx); err != nil {
		logger.Warn("mqtt unavailable, repetition events disabled", "broker", cfg.Broker, "error", err)
		return emitter.Noop{}
	}
	go em.Run(ctx)
	return em
}

func startKiosk(cfg *config.Config, sessions *session.Manager, factory pose.Factory, logger *slog.Logger) (*app.Kiosk, error) {
	extractor, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	camera := capture.NewCamera(cfg.Kiosk.CameraID)
	camera.SetFPS(cfg.Kiosk.FPS)

	kiosk := app.New(app.Config{
		Source:      camera,
		Extractor:   extractor,
		Sessions:    sessions,
		FPS:         cfg.Kiosk.FPS,
		JPEGQuality: cfg.Kiosk.JPEGQuality,
		Logger:      logger,
	})
	if err := kiosk.Start(); err != nil {
		extractor.Close()
		return nil, err
	}
	return kiosk, nil
}

func newTray(kiosk *app.Kiosk, addr string, quit func(), logger *slog.Logger) *tray.Tray {
	t := tray.New()
	t.OnToggle(kiosk.SetEnabled)
	t.OnReset(func() {
		if _, err := kiosk.Reset(); err != nil {
			logger.Warn("tray: reset failed", "error", err)
		}
	})
	t.OnOpen(func() {
		if err := openBrowser(dashboardURL(addr)); err != nil {
			logger.Warn("tray: failed to open browser", "error", err)
		}
	})
	t.OnQuit(quit)
	kiosk.OnUpdate(func(res pipeline.Result) {
		t.SetCount(res.Count, res.StatusLabel)
	})
	return t
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findStaticDir returns configured if set, otherwise the first "web"
// directory found next to the working directory or in ~/.repcounter.
func findStaticDir(configured string) string {
	if configured != "" {
		return configured
	}

	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWeb := filepath.Join(home, ".repcounter", "web")
	if info, err := os.Stat(homeWeb); err == nil && info.IsDir() {
		return homeWeb
	}
	return ""
}
