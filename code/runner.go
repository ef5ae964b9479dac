// Package code provides Runner implementations for executing model-written
// code in Python or Node.js, either in a local subprocess or in a one-shot
// Docker container.
package code

import (
	"context"
	"time"
)

// Runner executes code written by a model in a sandboxed environment.
// Implementations control the isolation (subprocess, container).
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Request is the input to Runner.Run.
type Request struct {
	// Code is the source code to execute.
	Code string `json:"code"`
	// Runtime selects the execution environment ("python", "node").
	// Empty defaults to "python".
	Runtime string `json:"runtime,omitempty"`
	// Timeout is the maximum execution duration. Zero means the runner
	// default.
	Timeout time.Duration `json:"-"`
	// Files are placed in the workspace before execution.
	Files []File `json:"files,omitempty"`
}

// Result is the output of Runner.Run.
type Result struct {
	// Output is what the code wrote to stdout.
	Output string `json:"output"`
	// Logs captures stderr.
	Logs string `json:"logs,omitempty"`
	// ExitCode is the process exit code (0 = success).
	ExitCode int `json:"exit_code"`
	// Error describes an execution failure (timeout, startup error).
	Error string `json:"error,omitempty"`
}

// File is an input file placed in the workspace before the code runs.
type File struct {
	// Name is the path relative to the workspace (e.g. "data.csv").
	Name string `json:"name"`
	// Data holds the file bytes.
	Data []byte `json:"-"`
}

// runtimeSpec describes how one runtime executes a script.
type runtimeSpec struct {
	scriptName string
	image      string
}

// specFor maps a Request.Runtime to its execution parameters. Unknown
// runtimes report ok=false.
func specFor(runtime string) (runtimeSpec, bool) {
	switch runtime {
	case "", "python":
		return runtimeSpec{scriptName: "main.py", image: "python:3.12-slim"}, true
	case "node":
		return runtimeSpec{scriptName: "main.js", image: "node:22-slim"}, true
	default:
		return runtimeSpec{}, false
	}
}
