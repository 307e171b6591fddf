package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/bridgeupload/internal/client/config"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configFile string
	server     string
	token      string
	timeout    time.Duration
}

// NewRootCommand builds the uploadctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	var flags rootFlags
	var app *App

	defaults := &config.Config{}
	defaults.LoadDefaults()

	rootCmd := &cobra.Command{
		Use:           "uploadctl",
		Short:         "Upload files to the study upload service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.Token == "" {
				return fmt.Errorf("a participant token is required (--token or config file)")
			}
			app = NewApp(cfg, out)
			return nil
		},
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to JSON configuration file")
	pf.StringVar(&flags.server, "server", defaults.ServerURL, "Base URL of the upload API")
	pf.StringVar(&flags.token, "token", "", "Participant bearer token")
	pf.DurationVar(&flags.timeout, "timeout", defaults.Timeout, "HTTP timeout per request")

	appFn := func() *App { return app }
	rootCmd.AddCommand(newPutCommand(appFn), newStatusCommand(appFn))

	return rootCmd
}

// loadConfig applies defaults, then the JSON file, then the flags the user
// actually set.
func loadConfig(cmd *cobra.Command, flags rootFlags) (*config.Config, error) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if err := cfg.LoadFile(flags.configFile); err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("server") {
		cfg.ServerURL = flags.server
	}
	if pf.Changed("token") {
		cfg.Token = flags.token
	}
	if pf.Changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	return cfg, nil
}
