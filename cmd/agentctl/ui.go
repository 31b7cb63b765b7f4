package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/store"
	"github.com/agentforge/pipeline/pkg/taxonomy"

	"github.com/agentforge/pipeline/cmd/agentctl/uiserver"
)

var uiPort int

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Serve a local read-only view of task and step history",
	RunE:  runUI,
}

func init() {
	uiCmd.Flags().IntVar(&uiPort, "port", 0, "port to listen on (defaults to the configured UI port)")
}

func runUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(stateRoot)
	if err != nil {
		return taxonomy.NewValidationError("cli", err.Error())
	}

	logger, closeLog, err := openLogger(stateRoot, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open(filepath.Join(stateRoot, "state.db"), cfg.Paths.WorkspaceRoot, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	port := uiPort
	if port == 0 {
		port = cfg.UI.Port
	}
	if port == 0 {
		port = 8090
	}

	srv := uiserver.New(st, logger)
	return srv.ListenAndServe(fmt.Sprintf(":%d", port))
}
