// Package cmd wires the phrase-renderer CLI's root command: global flags
// bound through viper, with each subcommand registered underneath it.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shirotsuki/phrase-renderer/cmd/render"
	"github.com/shirotsuki/phrase-renderer/internal/conf"
)

// RootCommand builds the phrase-renderer root command over settings.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "phrase-renderer",
		Short: "Incremental phrase-rendering pipeline CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(render.Command(settings))

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&settings.Engine.BaseURL, "engine-url", settings.Engine.BaseURL, "Base URL of the synthesis engine HTTP API")
	rootCmd.PersistentFlags().IntVar(&settings.Render.SingingTeacherStyleID, "style-id", settings.Render.SingingTeacherStyleID, "Style id passed to every engine call")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("binding persistent flags: %w", err)
	}
	return nil
}
