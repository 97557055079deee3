// Command phrase-renderer drives the incremental phrase-rendering pipeline
// from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/shirotsuki/phrase-renderer/cmd"
	"github.com/shirotsuki/phrase-renderer/internal/conf"
	"github.com/shirotsuki/phrase-renderer/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "phrase-renderer: loading configuration: %v\n", err)
		settings = conf.Default()
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "phrase-renderer: %v\n", err)
		os.Exit(1)
	}
}
