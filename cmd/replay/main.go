// Command replay applies a recorded capture to a fresh store and prints what
// the receiver made of it.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/capture"
	"github.com/plus3/deltasync/component"
	"github.com/plus3/deltasync/config"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/logging"
	"github.com/plus3/deltasync/replication"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "Path to the YAML config file. Defaults to $"+config.EnvVar+".")
	strict := pflag.Bool("strict", false, "Refuse captures recorded against a different schema.")
	stopOnDesync := pflag.Bool("stop-on-desync", false, "Stop at the first snapshot that fails to decode.")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: replay [flags] <capture>\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		return errors.New("expected one capture file")
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
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

	f, err := os.Open(pflag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	defer records.Close()

	header := records.Header()
	if fingerprint := s.Fingerprint(); header.Schema != fingerprint {
		if *strict {
			return fmt.Errorf("capture %s was recorded with schema %x, configured schema is %x", header.Session, header.Schema[:8], fingerprint[:8])
		}
		logger.Warn("schema fingerprint mismatch, expect desyncs", "session", header.Session)
	}

	registry := ecs.NewComponentRegistry()
	bindings, err := component.Register(registry, s)
	if err != nil {
		return err
	}
	store := ecs.NewStorage(registry)
	receiver := replication.NewReceiver(store, bindings, replication.WithLogger(logger))

	start := time.Now()
	var count, desyncs int
	for {
		rec, err := records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		count++

		if err := receiver.ApplySnapshot(rec.Frame, bitstream.NewReader(rec.Payload)); err != nil {
			desyncs++
			if *stopOnDesync {
				return fmt.Errorf("record %d (frame %d): %w", count, rec.Frame, err)
			}
		}
	}
	elapsed := time.Since(start)

	stats := receiver.Stats()
	fmt.Printf("session:     %s\n", header.Session)
	fmt.Printf("recorded:    %s\n", time.Unix(0, header.Created).UTC().Format(time.RFC3339))
	fmt.Printf("compression: %s\n", header.Compression)
	fmt.Printf("records:     %d in %s\n", count, elapsed)
	fmt.Printf("entities:    %d live, %d created, %d deleted\n", store.Len(), stats.Created, stats.Deleted)
	fmt.Printf("frames:      %d entity, %d component, %d skipped\n", stats.EntityFrames, stats.ComponentFrames, stats.Skipped)
	fmt.Printf("anomalies:   %d warnings, %d desyncs\n", stats.Warnings, desyncs)
	for _, handler := range bindings.Handlers() {
		fmt.Printf("  %-20s %d\n", handler.Name(), store.Count(handler.ComponentType()))
	}
	return nil
}
