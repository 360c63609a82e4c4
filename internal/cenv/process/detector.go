// Package process provides best-effort detection of running Claude Code
// processes.
//
// Detection is heuristic: it assumes Claude runs as a node process with
// "bin/claude" in its command line, and will miss installations inside
// containers, VMs, or non-standard locations. The heuristic prioritizes false
// negatives over false positives: on any uncertainty it reports not-running,
// so an operation is allowed rather than needlessly blocked. Users can bypass
// the check entirely with --force.
package process

import (
	"log/slog"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Oracle answers whether the managed application is currently running. The
// environment store consumes this through the interface so it stays
// deterministic under test.
type Oracle interface {
	Running() bool
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func() bool

// Running implements Oracle.
func (f OracleFunc) Running() bool {
	return f()
}

// Detector is the default Oracle, backed by process enumeration.
type Detector struct {
	log *slog.Logger
}

// NewDetector creates a Detector logging through the given logger.
func NewDetector(log *slog.Logger) *Detector {
	return &Detector{log: log}
}

// Running reports whether any Claude Code process appears to be running.
// Enumeration failures are logged and treated as not-running.
func (d *Detector) Running() bool {
	procs, err := gopsproc.Processes()
	if err != nil {
		d.log.Warn("process detection failed, assuming not running", "error", err)
		return false
	}

	count := 0
	for _, proc := range procs {
		if isClaudeProcess(proc) {
			count++
		}
	}
	if count > 0 {
		d.log.Info("detected running Claude process(es)", "count", count)
		return true
	}
	return false
}

func isClaudeProcess(proc *gopsproc.Process) bool {
	args, err := proc.CmdlineSlice()
	if err != nil || len(args) == 0 {
		// Permission errors are common for system processes; skip them.
		return false
	}

	mentionsClaude := false
	for _, arg := range args {
		if strings.Contains(strings.ToLower(arg), "claude") {
			mentionsClaude = true
			break
		}
	}
	if !mentionsClaude {
		return false
	}

	name, err := proc.Name()
	if err != nil || name != "node" {
		return false
	}
	for _, arg := range args {
		if strings.Contains(arg, "bin/claude") {
			return true
		}
	}
	return false
}
