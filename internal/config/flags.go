package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/mediaup/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   URL of the primary upload endpoint (default from Config)
//	-d string   directory holding the local upload-state database
//	-k int      maximum number of concurrently processed items
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.PrimaryEndpoint, "a", cfg.PrimaryEndpoint, "URL of the primary upload endpoint")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "directory holding the local upload-state database")
	fs.IntVar(&cfg.MaxConcurrent, "k", cfg.MaxConcurrent, "maximum number of concurrently processed items")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
