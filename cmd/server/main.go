package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/catalogs"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/observerproto"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/persistence/chunkdb"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/persistence/eventlog"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/transport/observer"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/tuning"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		seed       = flag.Int64("seed", 1337, "world seed (used only for chunks with no save)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable chunk persistence")
		eventsLog  = flag.Bool("events_log", false, "write world events to <data>/events as compressed JSONL")
		warmSpawn  = flag.Bool("warm_spawn", true, "start streaming around chunk (0,0) before any observer connects")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load tile catalog: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tun, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	var store world.Store
	if !*disableDB {
		db, err := chunkdb.Open(filepath.Join(*dataDir, "chunks.db"))
		if err != nil {
			logger.Fatalf("open chunk db: %v", err)
		}
		defer db.Close()
		store = db
	}

	gen, err := buildGenerator(cat, tun, *seed)
	if err != nil {
		logger.Fatalf("wire generator: %v", err)
	}

	hub := observer.NewHub()
	notifiers := world.NotifierList{hub}
	if *eventsLog {
		w := eventlog.NewWriter(filepath.Join(*dataDir, "events"))
		defer w.Close()
		notifiers = append(notifiers, w)
	}

	cfg := world.Config{
		GenerationRadius: tun.GenerationRadius,
		RemovalBuffer:    tun.RemovalBuffer,
		BuildsPerTick:    tun.BuildsPerTick,
		RemovalsPerTick:  tun.RemovalsPerTick,
		BakesPerTick:     tun.BakesPerTick,
		GenWorkers:       tun.GenWorkers,
		LightWorkers:     tun.LightWorkers,
		MaxBuildQueue:    tun.MaxBuildQueue,
		PoolCapacity:     tun.PoolCapacity,
		TickRateHz:       tun.TickRateHz,
		ShutdownTimeout:  time.Duration(tun.ShutdownTimeoutMs) * time.Millisecond,
	}
	mgr := world.NewManager(cfg, cat, gen.Generate, store, notifiers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- mgr.Run(ctx) }()
	if *warmSpawn {
		mgr.UpdateObserver(world.ChunkCoord{})
	}

	params := observerproto.WorldParams{
		TickRateHz: tun.TickRateHz,
		ChunkSide:  world.ChunkSide,
		RegionSize: world.RegionSize,
		MaxLight:   world.MaxLight,
		Seed:       *seed,
	}
	obs := observer.NewServer(mgr, hub, params, cat.Palette, cat.PaletteDigest, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	logger.Printf("listening on %s (seed=%d, persistence=%v)", *addr, *seed, store != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}

	if err := <-runErr; err != nil {
		logger.Printf("world loop: %v", err)
	}
	logger.Printf("shutdown complete")
}

func buildGenerator(cat *catalogs.TileCatalog, tun tuning.Tuning, seed int64) (world.TerrainGen, error) {
	g := world.TerrainGen{
		Seed:                  seed,
		SurfaceLevel:          tun.Worldgen.SurfaceLevel,
		SurfaceAmp:            tun.Worldgen.SurfaceAmp,
		OreProbScalePermille:  tun.Worldgen.OreProbScalePermille,
		CaveProbScalePermille: tun.Worldgen.CaveProbScalePermille,
	}
	var err error
	for _, bind := range []struct {
		name string
		dst  *uint8
	}{
		{"AIR", &g.Air},
		{"DIRT", &g.Dirt},
		{"STONE", &g.Stone},
		{"GRAVEL", &g.Gravel},
		{"COAL_ORE", &g.CoalOre},
		{"IRON_ORE", &g.IronOre},
		{"CRYSTAL_ORE", &g.CrystalOre},
		{"GLOWSHROOM", &g.Glowshroom},
	} {
		if *bind.dst, err = cat.MustID(bind.name); err != nil {
			return g, err
		}
	}
	return g, nil
}
