package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/template"
	"time"

	"github.com/plus3/archecs/ecs"
)

type Report struct {
	RunID string

	// Configuration
	Scenario   Scenario
	Components int
	Plan       string

	// Results
	TotalUpdates  int64
	TotalTime     time.Duration
	UpdateTime    Stats
	Systems       []ecs.SystemStats
	Storage       ecs.StorageStats
	MemStatsStart runtime.MemStats
	MemStatsEnd   runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
}

const reportTemplate = `# ECS Stress Test Report

Run: {{.RunID}}

## Test Configuration
- **Run Duration:** {{.Scenario.Duration}}
- **Initial Entities:** {{.Scenario.Entities}}
- **Workers:** {{.Scenario.Workers}}
- **Churn Per Frame:** {{.Scenario.Churn}}
- **Seed:** {{.Scenario.Seed}}
- **Registered Components:** {{.Components}}

## Schedule
{{range splitLines .Plan}}    {{.}}
{{end}}
## Performance Results
- **Total Updates:** {{.TotalUpdates}}
- **Total Test Time:** {{.TotalTime}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}

## Systems
| System | Stage | Runs | Skips | Avg | Max |
|--------|-------|------|-------|-----|-----|
{{range .Systems}}| {{.Name}} | {{.Stage}} | {{.ExecutionCount}} | {{.SkipCount}} | {{.AvgDuration}} | {{.MaxDuration}} |
{{end}}
## Storage
- **Live Entities:** {{.Storage.TotalEntityCount}} ({{.Storage.EntitySlots}} slots)
- **Archetypes:** {{.Storage.ArchetypeCount}}
- **Singletons:** {{join .Storage.SingletonTypes ", "}}
- **Tick:** {{.Storage.Tick}}

## Memory Usage
- Heap Alloc:     {{mb .MemStatsStart.HeapAlloc}} MB (start) -> {{mb .MemStatsEnd.HeapAlloc}} MB (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}} bytes
- Total Alloc:    {{mb .MemStatsStart.TotalAlloc}} MB (start) -> {{mb .MemStatsEnd.TotalAlloc}} MB (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}} bytes
- Sys Memory:     {{mb .MemStatsStart.Sys}} MB (start) -> {{mb .MemStatsEnd.Sys}} MB (end) -> delta: {{bsub .MemStatsEnd.Sys .MemStatsStart.Sys}} bytes
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .Scenario.GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{ns (u64sub .MemStatsEnd.PauseTotalNs .MemStatsStart.PauseTotalNs)}}
- **Num GC Cycles:** {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{end}}`

var reportFuncs = template.FuncMap{
	"mb": func(v uint64) string {
		return fmt.Sprintf("%.2f", float64(v)/1024/1024)
	},
	"bsub": func(a, b uint64) int64 {
		return int64(a) - int64(b)
	},
	"u64sub": func(a, b uint64) uint64 {
		return a - b
	},
	"usub": func(a, b uint32) uint32 {
		return a - b
	},
	"ns": func(ns uint64) string {
		return time.Duration(ns).String()
	},
	"join": func(items []string, sep string) string {
		if len(items) == 0 {
			return "none"
		}
		return strings.Join(items, sep)
	},
	"splitLines": func(s string) []string {
		s = strings.TrimSuffix(s, "\n")
		if s == "" {
			return nil
		}
		return strings.Split(s, "\n")
	},
}

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

func (r *Report) Generate(w io.Writer) error {
	return reportTmpl.Execute(w, r)
}
