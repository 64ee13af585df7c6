package cli

import (
	"fmt"

	"emrun/internal/config"

	"github.com/spf13/cobra"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show where emrun reads and writes its files",
	RunE:  runPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)
}

type pathsOutput struct {
	Config      string `json:"config"`
	Data        string `json:"data"`
	State       string `json:"state"`
	WorkDir     string `json:"work_dir,omitempty"`
	DB          string `json:"db,omitempty"`
	XLog        string `json:"x_log,omitempty"`
	YLog        string `json:"y_log,omitempty"`
	PostLog     string `json:"postprocess_log,omitempty"`
	Log         string `json:"log,omitempty"`
	SessionFile string `json:"session_marker,omitempty"`
}

func runPaths(cmd *cobra.Command, args []string) error {
	var out pathsOutput
	out.Config, _ = config.ConfigDir()
	out.Data, _ = config.DataDir()
	out.State, _ = config.StateDir()

	// Base dirs are still useful when no config is loadable.
	if cfg, err := loadConfig(); err == nil {
		out.WorkDir = cfg.WorkDir
		out.DB = cfg.DBPath
		out.XLog = cfg.Jobs.X.Log
		out.YLog = cfg.Jobs.Y.Log
		out.PostLog = cfg.Solver.PostprocessLog
		out.Log = cfg.LogFile
		out.SessionFile = sessionGuard(cfg).MarkerPath()
	}

	if jsonOut {
		printJSON(out)
		return nil
	}

	fmt.Printf("Config:   %s\n", out.Config)
	fmt.Printf("Data:     %s\n", out.Data)
	fmt.Printf("State:    %s\n", out.State)
	if out.WorkDir == "" {
		return nil
	}
	fmt.Println()
	fmt.Printf("Work dir: %s\n", out.WorkDir)
	fmt.Printf("Marker:   %s\n", out.SessionFile)
	fmt.Printf("DB:       %s\n", out.DB)
	fmt.Printf("X log:    %s\n", out.XLog)
	fmt.Printf("Y log:    %s\n", out.YLog)
	fmt.Printf("Post log: %s\n", out.PostLog)
	if out.Log != "" {
		fmt.Printf("Log:      %s\n", out.Log)
	}
	return nil
}
