package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/server"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the skills over HTTP",
		Long: `Start the HTTP API:

  GET  /healthz
  GET  /v1/devices
  GET  /v1/skills
  POST /v1/skills/:kind/evaluate   (multipart field "image")

Skills load on their first request and evaluate one request at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(a.v, cmd.Flags(), map[string]string{"addr": "server.addr"}); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx, a.v.GetString("server.addr"))
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address (default from config)")
	return cmd
}

func (a *app) newServer(ctx context.Context) (*server.Server, error) {
	o, err := a.skillOptions(ctx)
	if err != nil {
		return nil, err
	}
	devices, _, err := a.devices(ctx)
	if err != nil {
		return nil, err
	}
	descs, err := skills.Descriptors(o.Manifests)
	if err != nil {
		return nil, err
	}
	return server.New(server.Options{
		Devices:     devices,
		Descriptors: descs,
		Load: func(kind skill.Kind) (skills.ImageSkill, error) {
			return skills.Load(kind, o)
		},
	})
}

func (a *app) serve(ctx context.Context, addr string) error {
	srv, err := a.newServer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.G(ctx).WithError(err).Warn("close skills")
		}
	}()

	a.out.Success("serving vision skills on " + addr)
	a.out.Info("Press Ctrl+C to stop the server")
	return srv.Start(ctx, addr)
}
