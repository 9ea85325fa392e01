package cli

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/FreelineGuide/ExamBulldozer/internal/common"
	"github.com/FreelineGuide/ExamBulldozer/internal/export"
	"github.com/FreelineGuide/ExamBulldozer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.models.Lookup(cfg.LLM.Model); err != nil {
			return common.NewConfigError("EXAM_MODEL", err)
		}

		gin.SetMode(gin.ReleaseMode)
		srv := server.New(server.Deps{
			Orchestrator: a.orchestrator(),
			Service:      a.svc,
			Models:       a.models,
			Schemas:      a.schemas,
			Exporter:     export.NewService(logger),
			Settings:     a.settings(),
			DefaultModel: cfg.LLM.Model,
		}, logger)

		httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.HTTPAddr, err)
		}
		grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		return server.Serve(ctx, httpLis, grpcLis, srv.Router(), logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
