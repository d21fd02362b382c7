package main

import (
	flag "github.com/spf13/pflag"
)

// serveFlags holds the server command-line flags. Zero values mean "not
// set"; config file values fill the gaps, then defaults.
type serveFlags struct {
	config       string
	addr         string
	gamesDir     string
	templatesDir string
	outputDir    string
	publicURL    string
	poolSize     int
	timeout      string
	warmUp       bool
	quiet        bool
	verbose      bool
}

// parseFlags parses command-line flags and returns positional args.
func parseFlags(args []string) (*serveFlags, []string, error) {
	fs := flag.NewFlagSet("cardmaker", flag.ContinueOnError)
	f := &serveFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "config file path (YAML)")
	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (default 127.0.0.1:3000)")
	fs.StringVar(&f.gamesDir, "games-dir", "", "games data directory")
	fs.StringVar(&f.templatesDir, "templates-dir", "", "card templates directory")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "export output directory")
	fs.StringVar(&f.publicURL, "public-url", "", "base URL the browser reaches this server at")
	fs.IntVarP(&f.poolSize, "pool-size", "p", 0, "concurrent browser pages (0 = default)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-card render timeout (e.g., 30s, 2m)")
	fs.BoolVar(&f.warmUp, "warm-up", false, "launch the browser and fill the page pool at startup")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}
