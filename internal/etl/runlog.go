package etl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BartekS5/salesetl/pkg/utils"
)

// RunLogEntry is one line of the run log.
type RunLogEntry struct {
	RunDate        string           `json:"run_date"`
	State          State            `json:"state"`
	DryRun         bool             `json:"dry_run,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Attempts       map[string]int   `json:"attempts"`
	OnlineOutcome  string           `json:"online_outcome,omitempty"`
	InStoreOutcome string           `json:"in_store_outcome,omitempty"`
	Stats          AggregationStats `json:"stats"`
	Load           LoadReport       `json:"load"`
	Error          string           `json:"error,omitempty"`
}

// RunLog appends one JSON line per finished run to a local file. It is the
// audit trail for reruns; nothing reads it back during a run.
type RunLog struct {
	path string
	mu   sync.Mutex
}

func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

func (l *RunLog) Append(res *RunResult) error {
	entry := RunLogEntry{
		RunDate:        res.RunDate.Format(utils.DateLayout),
		State:          res.State,
		DryRun:         res.DryRun,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Attempts:       res.Attempts,
		OnlineOutcome:  string(res.OnlineOutcome),
		InStoreOutcome: string(res.InStoreOutcome),
		Stats:          res.Stats,
		Load:           res.Load,
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode run log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write run log: %w", err)
	}
	return f.Close()
}

// Entries reads every entry, oldest first. A missing file is an empty log.
func (l *RunLog) Entries() ([]RunLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var entries []RunLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e RunLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("run log line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
