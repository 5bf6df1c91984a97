package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	settingsPath string
	themesDir    string
	outputDir    string
	botToken     bool
	exportMD     bool
	noBanner     bool
	debugMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "discord-archiver",
	Short: "Archive Discord channels to static HTML",
	Long: `Connects to Discord with a user or bot token, lets you pick a server,
channels and a theme, and writes every selected channel to
discord_archive_<server id>/<channel>_archive.html.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(os.Getenv("LOGLEVEL"), debugMode)

		config, err := NewConfig(buildOverrides(cmd), log)
		if err != nil {
			return err
		}

		console := NewStdConsole()
		if !noBanner {
			console.ShowBanner()
		}

		themesRoot := config.ThemesRoot()
		if _, err := listThemes(themesRoot); err != nil {
			console.ShowPanel("Configuration Error", err.Error(), StyleError)
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coordinator := NewCoordinator(config.CoordinatorOptions(), log)
		archiver := NewArchiver(console, coordinator.Connector(), ArchiverOptions{
			ThemesRoot:    themesRoot,
			OutputRoot:    config.Settings.OutputDirectory,
			Markdown:      config.Settings.ExportMarkdown,
			ProgressEvery: config.Settings.History.ProgressEvery,
			Traceback:     config.Traceback,
		}, log)

		err = archiver.Run(ctx)
		if errors.Is(err, context.Canceled) {
			console.Log("Interrupted.", SeverityWarning)
			return nil
		}
		if err == nil {
			console.Log("Goodbye!", SeverityInfo)
		}
		return err
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List the available themes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := NewConfig(buildOverrides(cmd), newLogger(os.Getenv("LOGLEVEL"), debugMode))
		if err != nil {
			return err
		}
		root := config.ThemesRoot()
		themes, err := listThemes(root)
		if err != nil {
			return err
		}
		for _, t := range themes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t, themePath(root, t))
		}
		return nil
	},
}

// buildOverrides turns flags the operator actually set into overrides
func buildOverrides(cmd *cobra.Command) *ConfigOverrides {
	overrides := &ConfigOverrides{}
	flags := cmd.Flags()
	if settingsPath != "" {
		overrides.SettingsPath = &settingsPath
	}
	if themesDir != "" {
		overrides.ThemesDirectory = &themesDir
	}
	if outputDir != "" {
		overrides.OutputDirectory = &outputDir
	}
	if flags.Changed("bot") {
		overrides.Bot = &botToken
	}
	if flags.Changed("markdown") {
		overrides.Markdown = &exportMD
	}
	return overrides
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "config", "", "Path to a settings YAML file")
	rootCmd.PersistentFlags().StringVar(&themesDir, "themes", "", "Themes directory")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&outputDir, "output", "", "Directory to create archive directories in")
	rootCmd.Flags().BoolVar(&botToken, "bot", false, "Treat the token as a bot token")
	rootCmd.Flags().BoolVar(&exportMD, "markdown", false, "Also write a Markdown transcript per channel")
	rootCmd.Flags().BoolVar(&noBanner, "nobanner", false, "Do not show the welcome banner")
	rootCmd.AddCommand(themesCmd)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
