package main

import (
	"fmt"
	"io"
	"runtime"
	"slices"
	"text/template"
	"time"

	"github.com/plus3/deltasync/replication"
)

type Report struct {
	// Configuration
	Entities    int
	Frames      int
	Peers       int
	Seed        int64
	CapturePath string

	// Results
	TotalTime        time.Duration
	ApplyTime        Stats
	Snapshots        int
	SnapshotBytes    int64
	LiveEntities     int
	Receiver         replication.Stats
	Desyncs          int
	Released         int
	PendingDestroyed int
	GCPauseMetrics   bool
	MemStatsStart    runtime.MemStats
	MemStatsEnd      runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	P99     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	sorted := slices.Clone(s.Samples)
	slices.Sort(sorted)

	var total time.Duration
	for _, sample := range sorted {
		total += sample
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Avg = total / time.Duration(len(sorted))
	s.P99 = sorted[(len(sorted)-1)*99/100]
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# Replication Stress Test Report

## Test Configuration
- **Entities:** {{.Entities}}
- **Frames:** {{.Frames}}
- **Peers:** {{.Peers}}
- **Seed:** {{.Seed}}
{{- if .CapturePath}}
- **Capture:** {{.CapturePath}}
{{- end}}

## Traffic
- **Snapshots:** {{.Snapshots}} ({{mb .SnapshotBytes}} MiB)
- **Entity Frames:** {{.Receiver.EntityFrames}}
- **Component Frames:** {{.Receiver.ComponentFrames}}
- **Created / Deleted:** {{.Receiver.Created}} / {{.Receiver.Deleted}}
- **Skipped:** {{.Receiver.Skipped}}
- **Warnings:** {{.Receiver.Warnings}}
- **Desyncs:** {{.Desyncs}}
- **Released Locally:** {{.Released}} ({{.PendingDestroyed}} awaiting confirmation)
- **Live Entities:** {{.LiveEntities}}

## Performance Results
- **Total Test Time:** {{.TotalTime}}
- **Apply Time (Frame):**
  - **Avg:** {{.ApplyTime.Avg}}
  - **P99:** {{.ApplyTime.P99}}
  - **Min:** {{.ApplyTime.Min}}
  - **Max:** {{.ApplyTime.Max}}

## Memory Usage (Raw Bytes)
- Heap Alloc:     {{.MemStatsStart.HeapAlloc}} (start) -> {{.MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}}
- Total Alloc:    {{.MemStatsStart.TotalAlloc}} (start) -> {{.MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}}
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}

{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
- **Num GC Cycles:** {{ usub .MemStatsEnd.NumGC .MemStatsStart.NumGC }}
{{end}}
`

	fm := template.FuncMap{
		"mb": func(v int64) string {
			return fmt.Sprintf("%.2f", float64(v)/1024/1024)
		},
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
