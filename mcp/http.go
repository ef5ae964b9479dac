package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// maxHTTPBody caps a single POST body.
const maxHTTPBody = 10 << 20

// ServeHTTP implements the MCP streamable HTTP transport: clients POST
// JSON-RPC messages and receive the response in the POST body, either as
// plain JSON or as a server-sent event stream when the Accept header asks
// for text/event-stream. Notification-only posts get 202 with no body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	body = bytes.TrimSpace(body)

	responses := s.handleData(r.Context(), body)
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeSSE(w, responses)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	// A batch request gets a batch response, even with a single entry.
	if len(body) > 0 && body[0] == '[' {
		err = enc.Encode(responses)
	} else {
		err = enc.Encode(responses[0])
	}
	if err != nil {
		log.Printf(" [mcp] write http response: %v", err)
	}
}

// writeSSE delivers each response as one data event and closes the stream.
func writeSSE(w http.ResponseWriter, responses []response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for _, resp := range responses {
		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf(" [mcp] marshal response: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
