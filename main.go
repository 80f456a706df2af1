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

	"go-scooterscan/config"
	"go-scooterscan/credential"
	"go-scooterscan/cronjobs"
	"go-scooterscan/db"
	"go-scooterscan/export"
	"go-scooterscan/geocode"
	"go-scooterscan/handlers"
	"go-scooterscan/logging"
	"go-scooterscan/metrics"
	"go-scooterscan/processor"
	"go-scooterscan/routes"

	"cloud.google.com/go/firestore"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file; the environment alone is enough when it is missing.
	_ = godotenv.Load()

	logger := logging.NewFromEnv()

	app := &cli.App{
		Name:  "scooterscan",
		Usage: "Discover every scooter in an area by adaptive map queries",
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Run one discovery and write GeoJSON",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "bbox", Usage: "minLon,minLat,maxLon,maxLat"},
					&cli.StringFlag{Name: "city", Usage: "feature id in the cities GeoJSON"},
					&cli.StringFlag{Name: "place", Usage: "place name to geocode"},
					&cli.BoolFlag{Name: "resume", Usage: "continue from the last checkpoint for this target"},
				}, tuningFlags()...),
				Action: func(cCtx *cli.Context) error {
					return runScan(cCtx, logger)
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the HTTP API and run scheduled scans",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "port", EnvVars: []string{"PORT"}, Value: "8080"},
				}, tuningFlags()...),
				Action: func(cCtx *cli.Context) error {
					return runServe(cCtx, logger)
				},
			},
			{
				Name:  "token",
				Usage: "Show when the configured credential expires",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Usage: "yandex or urent"},
				},
				Action: runToken,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		level.Error(logger).Log("msg", "exiting", "err", err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func tuningFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "provider", Usage: "yandex or urent"},
		&cli.Float64Flag{Name: "cell-size", Usage: "grid cell size in degrees"},
		&cli.IntFlag{Name: "min-cluster", Usage: "cluster size that triggers expansion"},
		&cli.Float64Flag{Name: "shrink-radius", Usage: "initial expansion half-width in degrees"},
		&cli.Float64Flag{Name: "max-zoom", Usage: "zoom ceiling for expansion"},
		&cli.DurationFlag{Name: "delay", Usage: "minimum time between requests"},
		&cli.IntFlag{Name: "retries", Usage: "attempts per query"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory"},
	}
}

// loadConfig reads the environment and applies any flags that were set.
func loadConfig(cCtx *cli.Context) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, err
	}
	if cCtx.IsSet("provider") {
		cfg.Provider = cCtx.String("provider")
	}
	if cCtx.IsSet("cell-size") {
		cfg.CellSize = cCtx.Float64("cell-size")
	}
	if cCtx.IsSet("min-cluster") {
		cfg.SizeThreshold = cCtx.Int("min-cluster")
	}
	if cCtx.IsSet("shrink-radius") {
		cfg.ShrinkRadius = cCtx.Float64("shrink-radius")
	}
	if cCtx.IsSet("max-zoom") {
		cfg.MaxZoom = cCtx.Float64("max-zoom")
	}
	if cCtx.IsSet("delay") {
		cfg.Delay = cCtx.Duration("delay")
	}
	if cCtx.IsSet("retries") {
		cfg.Retries = cCtx.Int("retries")
	}
	if cCtx.IsSet("output") {
		cfg.OutputDir = cCtx.String("output")
		if os.Getenv("SCAN_CITIES_FILE") == "" {
			cfg.CitiesFile = cfg.OutputDir + "/cities.geojson"
		}
	}
	if cCtx.IsSet("port") {
		cfg.Port = cCtx.String("port")
	}
	return cfg, cfg.Validate()
}

// firestoreClient returns nil when persistence is not configured.
func firestoreClient(ctx context.Context, logger log.Logger) (*firestore.Client, error) {
	client, err := db.InitFirestore(ctx)
	if errors.Is(err, db.ErrNotConfigured) {
		level.Info(logger).Log("msg", "firestore not configured, runs stay local")
		return nil, nil
	}
	return client, err
}

// placeResolver returns nil when geocoding is not configured.
func placeResolver(cfg config.Config, logger log.Logger) processor.PlaceResolver {
	if cfg.MapsCredentials == "" {
		return nil
	}
	r, err := geocode.DefaultResolver()
	if err != nil {
		level.Warn(logger).Log("msg", "geocoding unavailable", "err", err)
		return nil
	}
	return r
}

func runScan(cCtx *cli.Context, logger log.Logger) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	var raw string
	set := 0
	for _, f := range []string{"bbox", "city", "place"} {
		if v := cCtx.String(f); v != "" {
			set++
			raw = v
			if f == "place" {
				raw = "place:" + v
			}
		}
	}
	if set != 1 {
		return cli.Exit("exactly one of --bbox, --city or --place is required", 2)
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	target, err := processor.ResolveTarget(ctx, raw, cfg.CitiesFile, placeResolver(cfg, logger))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	fs, err := firestoreClient(ctx, logger)
	if err != nil {
		return err
	}
	defer db.CloseFirestore()

	scanner := &processor.Scanner{Config: cfg, Logger: logger, Firestore: fs}
	out, err := scanner.Scan(ctx, target, processor.ScanOptions{Resume: cCtx.Bool("resume")})
	res := out.Result
	if processor.Aborted(err) {
		fmt.Printf("Scan of %s aborted after %d records: %v\n", target.ID, len(res.Records), err)
		fmt.Printf("Checkpoint saved to %s, rerun with --resume to continue\n", out.Checkpoint)
		return cli.Exit("", 1)
	}
	if err != nil {
		return err
	}

	st := export.Summarize(res.Records)
	fmt.Printf("Target %s (%s)\n", target.ID, cfg.Provider)
	fmt.Printf("  scooters:          %d\n", st.Scooters)
	fmt.Printf("  clusters:          %d (%d scooters, %d empty)\n", st.Clusters, st.ClusterScooters, st.EmptyClusters)
	fmt.Printf("  total scooters:    %d\n", st.TotalScooters)
	fmt.Printf("  cells / expanded:  %d / %d\n", res.Stats.Cells, res.Stats.Expanded)
	if len(res.Degraded) > 0 {
		fmt.Printf("  degraded regions:  %d\n", len(res.Degraded))
	}
	fmt.Printf("Saved to %s\n", out.OutputPath)
	return nil
}

func runServe(cCtx *cli.Context, logger log.Logger) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs, err := firestoreClient(ctx, logger)
	if err != nil {
		return err
	}
	defer db.CloseFirestore()

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	scanner := processor.Scanner{Config: cfg, Logger: logger, Metrics: collector, Firestore: fs}
	places := placeResolver(cfg, logger)
	store := handlers.NewRunStore(ctx, logger)

	if cfg.Schedule != "" {
		c, err := cronjobs.InitCronJobs(ctx, cfg.Schedule, cfg.Targets, func(ctx context.Context, raw string) error {
			target, err := processor.ResolveTarget(ctx, raw, cfg.CitiesFile, places)
			if err != nil {
				return err
			}
			return store.RunAndWait(target, cfg.Provider, true, scanner.Scan)
		}, logger)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: routes.SetupRouter(routes.Deps{
			Store:     store,
			Scanner:   scanner,
			Places:    places,
			Firestore: fs,
			Metrics:   collector,
			Logger:    logger,
		}),
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "shutdown", "err", err)
	}
	store.Wait()
	return nil
}

func runToken(cCtx *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cCtx.IsSet("provider") {
		cfg.Provider = cCtx.String("provider")
	}
	cred, err := credential.Load(cfg.Provider, cfg.CredentialsFile)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	info, err := credential.Inspect(cred.Token)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot decode %s token: %v", cred.Provider, err), 1)
	}

	now := time.Now()
	fmt.Printf("Provider:   %s\n", cred.Provider)
	fmt.Printf("Issued:     %s\n", info.IssuedAt.Local().Format(time.DateTime))
	fmt.Printf("Expires:    %s\n", info.ExpiresAt.Local().Format(time.DateTime))
	fmt.Printf("Lifetime:   %s\n", credential.FormatRemaining(info.Lifetime()))
	fmt.Printf("Remaining:  %s\n", credential.FormatRemaining(info.Remaining(now)))
	if info.DeviceUUID != "" {
		fmt.Printf("Device:     %s\n", info.DeviceUUID)
	}
	if info.IP != "" {
		fmt.Printf("IP:         %s\n", info.IP)
	}
	if info.Expired(now) {
		return cli.Exit("token expired", 1)
	}
	return nil
}
