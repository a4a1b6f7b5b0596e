package main

import (
	"Blogroll/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds the state shared by all subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *logrus.Entry
}

func newRootCmd() *cobra.Command {
	a := new(app)
	cmd := &cobra.Command{
		Use:   "blogrank",
		Short: "Discover and rank sites by following their link rolls",
		Long: `blogrank discovers a network of sites by following the link rolls
("blog rolls") embedded in their pages, stores the link graph among them
and computes an importance score for every site.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newSpiderCmd(a))
	cmd.AddCommand(newRankCmd(a))
	cmd.AddCommand(newServeCmd(a))
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.cfg = config.Default()
	if a.configPath != "" {
		cfg, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	a.logger = a.cfg.Logger()
	a.logger.Logger.SetOutput(cmd.ErrOrStderr())
	if a.verbose {
		a.logger.Logger.SetLevel(logrus.DebugLevel)
	}
	return nil
}
