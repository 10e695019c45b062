package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/benchkit/internal/config"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "benchkit",
		Short:         "Run LLM benchmark evaluations",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newHistoryCmd(st))
	root.AddCommand(newListCmd())
	root.AddCommand(newServeCmd(st))
	return root
}

// loadState fills st.cfg. A missing file at the default path falls back to
// built-in defaults; an explicit --config path must exist.
func loadState(st *cliState) error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		if st.configPath == config.DefaultPath && errors.Is(err, fs.ErrNotExist) {
			st.cfg = config.Default()
			return nil
		}
		return err
	}
	st.cfg = cfg
	return nil
}
