package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nevindra/parley/internal/config"
	"github.com/nevindra/parley/mcp"
)

func buildServeMCPCmd() *cobra.Command {
	var (
		configPath string
		httpAddr   string
	)
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Expose the configured toolkit as an MCP server",
		Long: `Serve the toolkit over the Model Context Protocol so other agents and
editors can call the tools. By default the server speaks newline-delimited
JSON-RPC on stdin/stdout; with --http it listens on the given address
instead. Markdown files in the configured docs directory are registered
as MCP resources.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeMCP(configPath, httpAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file (default parley.toml)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve over HTTP on this address instead of stdio (e.g. :8600)")
	return cmd
}

func runServeMCP(configPath, httpAddr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := config.Load(configPath)
	kit, err := buildToolkit(cfg)
	if err != nil {
		return err
	}

	srv := mcp.New("parley", version, kit)
	registerDocResources(srv, cfg.Workspace.DocsDir)

	if httpAddr != "" {
		httpSrv := &http.Server{Addr: httpAddr, Handler: srv}
		go func() {
			<-ctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = httpSrv.Shutdown(shutCtx)
		}()
		fmt.Fprintln(os.Stderr, "mcp: listening on", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// registerDocResources exposes every markdown file under dir as a read-only
// MCP resource. Files are re-read on each resources/read so edits show up
// without a restart.
func registerDocResources(srv *mcp.Server, dir string) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".md")
		path := filepath.Join(dir, e.Name())
		srv.AddResource(mcp.Resource{
			URI:         "parley://docs/" + slug,
			Name:        toTitle(slug),
			Description: "Documentation: " + toTitle(slug),
			MimeType:    "text/markdown",
			Read: func() string {
				data, err := os.ReadFile(path)
				if err != nil {
					return ""
				}
				return string(data)
			},
		})
	}
}

// toTitle converts a slug like "input-handler" to "Input Handler".
func toTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
