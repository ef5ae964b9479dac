// Package code exposes execute_code: run model-written Python or JavaScript
// through a code.Runner and feed the output back to the model.
package code

import (
	"context"
	"strings"

	"github.com/nevindra/parley"
	"github.com/nevindra/parley/code"
)

type execArgs struct {
	Code    string `json:"code" jsonschema:"required,description=Code to execute. Use print() (Python) or console.log() (Node) to produce output."`
	Runtime string `json:"runtime,omitempty" jsonschema:"description=Execution runtime,enum=python,enum=node,default=python"`
}

// New creates the execute_code tool backed by the given runner.
func New(runner code.Runner) parley.Tool {
	e := &executor{runner: runner}
	return parley.MustFuncTool("execute_code",
		"Execute Python or JavaScript code to perform complex operations. Use when you need conditional logic, data processing, or loops. The code runs in an isolated workspace; stdout is returned as the result and stderr as logs.",
		e.exec)
}

type executor struct {
	runner code.Runner
}

func (e *executor) exec(ctx context.Context, args execArgs) (*parley.ToolResponse, error) {
	if strings.TrimSpace(args.Code) == "" {
		return parley.ErrorResponse("execute_code requires non-empty code"), nil
	}

	result, err := e.runner.Run(ctx, code.Request{Code: args.Code, Runtime: args.Runtime})
	if err != nil {
		return parley.ErrorResponse("code execution failed: " + err.Error()), nil
	}

	if result.Error != "" {
		response := result.Error
		if result.Logs != "" && result.Logs != result.Error {
			response += "\n\nlogs:\n" + result.Logs
		}
		return parley.ErrorResponse(response), nil
	}

	response := result.Output
	if response == "" {
		response = "(no output - use print() or console.log() to produce output)"
	}
	if result.Logs != "" {
		response += "\n\nlogs:\n" + result.Logs
	}
	return parley.TextResponse(response), nil
}
