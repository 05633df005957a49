package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/cjeanneret/TurnGo/internal/config"
	"github.com/cjeanneret/TurnGo/internal/debug"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// defaultConfigPath is tried when neither --config nor TURNGO_CONFIG is set.
var defaultConfigPath = filepath.Join("configs", "default.yaml")

// app carries state shared by the subcommands.
type app struct {
	cfgPath    string
	debugLevel int
	cfg        *config.Config

	listen func(network, addr string) (net.Listener, error) // nil = net.Listen
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "turngo",
		Short: "Turntable photography rig controller",
		Long: `TurnGo drives a motorized turntable for photogrammetry.

Each camera frame that arrives while the plate is turning sends one step
command to the motor controller. Once the controller confirms the step, the
frame is saved as frame<row>_<index>.jpg, where index is the plate position.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to config file (default $TURNGO_CONFIG or configs/default.yaml)")
	cmd.PersistentFlags().IntVar(&a.debugLevel, "debug", -1, "debug level 0-4, overrides the config file")

	cmd.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newPortsCmd(a),
		newStepCmd(a),
		newGapsCmd(a),
	)
	return cmd
}

// load reads the configuration and initialises logging.
func (a *app) load(cmd *cobra.Command) error {
	path, explicit := resolveConfigPath(a.cfgPath)
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()

	level := cfg.Defaults.DebugLevel
	if a.debugLevel >= 0 {
		if a.debugLevel > 4 {
			return fmt.Errorf("--debug must be between 0 and 4, got %d", a.debugLevel)
		}
		level = a.debugLevel
	}
	debug.Init(level)
	debug.SetOutput(cmd.ErrOrStderr())
	debug.Section("Initialization")
	if path != "" {
		debug.Value("Config path", path)
	}
	debug.Value("Debug level", level)

	a.cfg = cfg
	return nil
}

// listener opens the TCP listener of the web panel.
func (a *app) listener(addr string) (net.Listener, error) {
	listen := a.listen
	if listen == nil {
		listen = net.Listen
	}
	ln, err := listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// resolveConfigPath returns the file to read and whether the user named it.
func resolveConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if env := os.Getenv("TURNGO_CONFIG"); env != "" {
		return env, true
	}
	return defaultConfigPath, false
}

// loadConfig reads path. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}
