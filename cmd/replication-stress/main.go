package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/plus3/deltasync/capture"
	"github.com/plus3/deltasync/component"
	"github.com/plus3/deltasync/config"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/logging"
	"github.com/plus3/deltasync/replication"
	"github.com/spf13/pflag"
)

const tickRate = 60

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "replication-stress:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "Path to the YAML config file. Defaults to $"+config.EnvVar+".")
	entities := pflag.Int("entities", 0, "Override stress.entities: the number of live remote entities.")
	frames := pflag.Int("frames", 0, "Override stress.frames: the number of simulation frames to run.")
	peers := pflag.Int("peers", 0, "Override stress.peers: the number of concurrent remote peers.")
	seed := pflag.Int64("seed", 0, "Override stress.seed.")
	capturePath := pflag.String("capture", "", "Override capture.path: record every snapshot to this file.")
	gcPauseMetrics := pflag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	flags := pflag.CommandLine
	if flags.Changed("entities") {
		cfg.Stress.Entities = *entities
	}
	if flags.Changed("frames") {
		cfg.Stress.Frames = *frames
	}
	if flags.Changed("peers") {
		cfg.Stress.Peers = *peers
	}
	if flags.Changed("seed") {
		cfg.Stress.Seed = *seed
	}
	if flags.Changed("capture") {
		cfg.Capture.Path = *capturePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slogger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	logger := logging.NewSlog(slogger)

	s, err := cfg.LoadSchema()
	if err != nil {
		return err
	}

	// 1. Setup Registry, Storage, Receiver and Scheduler
	registry := ecs.NewComponentRegistry()
	bindings, err := component.Register(registry, s)
	if err != nil {
		return err
	}
	store := ecs.NewStorage(registry)
	receiver := replication.NewReceiver(store, bindings, replication.WithLogger(logger))
	system := replication.NewReceiveSystem(receiver)

	var desyncs int
	system.OnDesync = func(err error) {
		desyncs++
		logger.Error("dropped snapshot", "err", err)
	}

	release := NewReleaseSystem(receiver, cfg.Stress.ReleaseRatio, cfg.Stress.Seed)

	scheduler := ecs.NewScheduler(store)
	scheduler.Register(system)
	scheduler.Register(release)

	// 2. Optional capture
	var recorder *capture.Writer
	if cfg.Capture.Path != "" {
		f, err := os.Create(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("creating capture: %w", err)
		}
		defer f.Close()

		recorder, err = capture.NewWriter(f, capture.NewHeader(s.Fingerprint(), cfg.CaptureCompression()))
		if err != nil {
			return err
		}
		defer recorder.Close()
		logger.Info("recording capture", "path", cfg.Capture.Path, "session", recorder.Header().Session)
	}

	// 3. Run the simulation loop
	generators := make([]*Generator, cfg.Stress.Peers)
	for i := range generators {
		generators[i] = NewGenerator(i, cfg.Stress, bindings)
	}

	report := &Report{
		Entities:       cfg.Stress.Entities,
		Frames:         cfg.Stress.Frames,
		Peers:          cfg.Stress.Peers,
		Seed:           cfg.Stress.Seed,
		CapturePath:    cfg.Capture.Path,
		GCPauseMetrics: *gcPauseMetrics,
		ApplyTime: Stats{
			Samples: make([]time.Duration, 0, cfg.Stress.Frames),
		},
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("running simulation", "frames", cfg.Stress.Frames, "peers", cfg.Stress.Peers, "entities", cfg.Stress.Entities)
	startTime := time.Now()

	snapshots := make([][]byte, len(generators))
	errs := make([]error, len(generators))
	for range cfg.Stress.Frames {
		var wg sync.WaitGroup
		for i, g := range generators {
			wg.Add(1)
			go func() {
				defer wg.Done()
				snapshots[i], errs[i] = g.Snapshot()
			}()
		}
		wg.Wait()
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("frame %d: %w", scheduler.Frame()+1, err)
		}

		for _, data := range snapshots {
			system.Enqueue(data)
			report.Snapshots++
			report.SnapshotBytes += int64(len(data))
			if recorder != nil {
				if err := recorder.Write(capture.Record{Frame: scheduler.Frame() + 1, Payload: data}); err != nil {
					return err
				}
			}
		}

		applyStart := time.Now()
		scheduler.Once(1.0 / tickRate)
		report.ApplyTime.Samples = append(report.ApplyTime.Samples, time.Since(applyStart))
	}

	report.TotalTime = time.Since(startTime)
	report.ApplyTime.Finalize()
	report.Receiver = receiver.Stats()
	report.Desyncs = desyncs
	report.Released = release.Released
	report.PendingDestroyed = receiver.Tracker().DestroyedLen()
	report.LiveEntities = store.Len()
	runtime.ReadMemStats(&report.MemStatsEnd)

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return fmt.Errorf("closing capture: %w", err)
		}
		logger.Info("capture written", "records", recorder.Len())
	}

	// 4. Generate Report to Console
	fmt.Println("\n\n--- Replication Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	fmt.Println("--- End of Report ---")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
