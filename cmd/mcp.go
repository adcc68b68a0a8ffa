package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentic-research/spherepack/internal/config"
	"github.com/agentic-research/spherepack/internal/ingest"
	"github.com/agentic-research/spherepack/internal/packing"
	"github.com/agentic-research/spherepack/internal/sink"
)

// Version is reported to MCP clients.
var Version = "dev"

func newServeMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve sphere counting as Model Context Protocol tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			log, err := g.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return server.ServeStdio(newMCPServer(cfg, log))
		},
	}
}

func newMCPServer(cfg config.Config, log logrus.FieldLogger) *server.MCPServer {
	s := server.NewMCPServer("spherepack", Version, server.WithToolCapabilities(false))
	t := &mcpTools{cfg: cfg, log: log}

	s.AddTool(mcp.NewTool("count_spheres",
		mcp.WithDescription("Count packable spheres for every molecule in an SDF file or directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("SDF file or directory of SDF files")),
		mcp.WithNumber("workers", mcp.Description("Worker goroutines (default from config)")),
		mcp.WithNumber("radius", mcp.Description("Sphere radius in Angstrom")),
	), t.countSpheres)

	s.AddTool(mcp.NewTool("packing_estimate",
		mcp.WithDescription("Number of spheres that fit a given volume at random close packing"),
		mcp.WithNumber("volume", mcp.Required(), mcp.Description("Volume in cubic Angstrom")),
		mcp.WithNumber("radius", mcp.Description("Sphere radius in Angstrom")),
	), t.packingEstimate)
	return s
}

type mcpTools struct {
	cfg config.Config
	log logrus.FieldLogger
}

func (t *mcpTools) countSpheres(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg := t.cfg
	cfg.Input = path
	cfg.Workers = int(req.GetFloat("workers", float64(cfg.Workers)))
	cfg.SphereRadius = req.GetFloat("radius", cfg.SphereRadius)
	// Rows are returned to the client, not written anywhere.
	cfg.Output = "memory"
	cfg.Rejects = ""
	if err := cfg.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := &sink.Memory{}
	d := &ingest.Driver{Sink: out, Config: cfg, Log: t.log}
	sum, err := d.Run(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rows := make([]any, 0, len(out.Rows()))
	for _, r := range out.Rows() {
		rows = append(rows, map[string]any{
			"mol_name":     r.Name,
			"volume":       r.Volume,
			"sphere_count": r.SphereCount,
		})
	}
	return mcp.NewToolResultText(oj.JSON(map[string]any{
		"run_id":          sum.RunID,
		"files":           sum.Files,
		"records":         sum.Records,
		"succeeded":       sum.Succeeded,
		"failed":          sum.Failed,
		"elapsed_seconds": sum.Seconds,
		"rows":            rows,
	}, jsonSorted)), nil
}

func (t *mcpTools) packingEstimate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	volume, err := req.RequireFloat("volume")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	radius := req.GetFloat("radius", t.cfg.SphereRadius)
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 || !(radius > 0) || math.IsInf(radius, 0) {
		return mcp.NewToolResultError(fmt.Sprintf("volume must be a finite non-negative number and radius a finite positive one, got %g and %g", volume, radius)), nil
	}
	return mcp.NewToolResultText(oj.JSON(map[string]any{
		"volume":       packing.FormatVolume(volume),
		"radius":       radius,
		"sphere_count": packing.SphereCount(volume, radius),
	}, jsonSorted)), nil
}

var jsonSorted = &oj.Options{Sort: true}
