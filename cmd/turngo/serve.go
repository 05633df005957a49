package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"

	"github.com/cjeanneret/TurnGo/internal/config"
	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/cjeanneret/TurnGo/internal/hw/camera"
	"github.com/cjeanneret/TurnGo/internal/logic/turntable"
	"github.com/cjeanneret/TurnGo/internal/web"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web control panel and 360° viewer",
		Long: `Runs the rig and serves a control panel to start, stop and configure the
rotation, plus a viewer that spins through the saved photos of a row.

With camera.type "none" only the viewer works; controls answer 503.
Clients may pick output folders under output.folder or the pictures
directory unless web.allow_any_folder is set.`,
		Example: `  # Port from config (default 8080)
  turngo serve

  # Custom port
  turngo serve --port 8980`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if port == 0 {
				port = cfg.Web.Port
			}
			if port < 0 || port > 65535 {
				return fmt.Errorf("port must be 1-65535, got %d", port)
			}
			ln, err := a.listener(net.JoinHostPort(cfg.Web.Host, strconv.Itoa(port)))
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, ln, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default web.port from config)")

	return cmd
}

// serve runs the rig and the web panel on ln until ctx is done. Log lines
// go to stderr and to status stream clients.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, stderr io.Writer) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(stderr, web.BroadcastWriter(broadcaster)))

	parts, err := buildRig(cfg, true, broadcaster)
	if err != nil {
		ln.Close()
		return err
	}
	defer parts.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := parts.rig.Run(ctx); err != nil {
			debug.Warn("Rig not running: %v", err)
		}
	}()

	form := web.FormConfig{
		PhotosPerRow:        cfg.Capture.PhotosPerRow,
		PhotosPerRowChoices: turntable.PhotosPerRowChoices,
		Row:                 cfg.Capture.Row,
		Folder:              parts.frames.Dir(),
	}
	folders := web.FolderPolicy{AllowAny: cfg.Web.AllowAnyFolder}
	for _, root := range []string{parts.frames.Dir(), camera.DefaultDir()} {
		if abs, err := filepath.Abs(root); err == nil {
			folders.Roots = append(folders.Roots, abs)
		}
	}
	srv := web.NewServer(ln.Addr().String(), broadcaster, parts.rig, parts.steps, form, folders)
	err = srv.Serve(ctx, ln)
	cancel()

	// The link is closed only after the last step finished.
	<-parts.rig.Done()
	<-runDone
	return err
}
