// Package parley is a library for building conversational LLM agents in Go.
//
// It provides modular, interface-driven building blocks: a streaming reply
// loop with tool dispatch, chat model adapters, prompt formatters,
// conversation memory, a tool execution system, session persistence, and
// reply hooks.
//
// # Quick Start
//
// Create an agent using the ReActAgent primitive:
//
//	model := openaicompat.New(apiKey, "gpt-4o-mini", "")
//	ws := file.New("./workspace")
//
//	agent := parley.NewReActAgent(
//		"assistant",
//		model,
//		parley.WithSysPrompt("You are a helpful assistant."),
//		parley.WithTools(ws.Tools()...),
//		parley.WithTools(web.New(nil)),
//	)
//
//	reply, err := agent.Reply(ctx, parley.TextMsg("user", parley.RoleUser, "What's in notes.txt?"))
//
// Stream surfaces every intermediate message (text deltas, assembled tool
// calls, tool results) as the loop produces them:
//
//	stream := agent.Stream(ctx, parley.TextMsg("user", parley.RoleUser, "Summarize the report."))
//	for msg := range stream.Ch() {
//		// render msg
//	}
//	if err := stream.Err(); err != nil {
//		// the reply failed partway
//	}
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Agent] — composable conversational unit (ReActAgent, UserAgent, or custom)
//   - [Model] — streaming chat backend with tool calling
//   - [Formatter] — conversation-to-wire-format conversion
//   - [Memory] — in-conversation message history
//   - [Tool] — pluggable capability for model function calling
//   - [Session] — snapshot and restore of agent state
//   - [StateModule] — anything whose state a Session carries
//
// # Included Implementations
//
// Models: provider/openaicompat (OpenAI-compatible APIs), provider/dashscope
// (Alibaba DashScope); provider/resolve builds either from a plain config.
// Sessions: [JSONSession] (local files), session/sqlite, session/postgres.
// Tools: tools/file, tools/web, tools/pdf, tools/docs, tools/code.
// Serving: mcp exposes a Toolkit over the Model Context Protocol.
//
// See the cmd/parley directory for a complete reference application.
package parley
