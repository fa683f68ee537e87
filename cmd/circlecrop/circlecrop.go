package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/abworrall/circlecrop/pkg/batch"
)

var (
	fConfig    string
	fVerbosity int
	fOverlays  bool
)

func init() {
	flag.StringVar(&fConfig, "config", "", "the YAML (or JSON) configuration file")
	flag.StringVar(&fConfig, "configuration", "", "same as -config")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.BoolVar(&fOverlays, "overlays", false, "write debug overlays of the detected circles")
	flag.Parse()

	log.Printf("circlecrop starting\n")
}

func main() {
	if fConfig == "" && flag.NArg() > 0 {
		fConfig = flag.Arg(0)
	}
	if fConfig == "" {
		log.Fatalf("no configuration file; use -config <file>")
	}

	cfg, err := batch.LoadConfig(fConfig)
	if err != nil {
		log.Fatalf("%s: %v", batch.FailureKind(err), err)
	}

	// Override the config file with command line args, if relevant
	if fVerbosity > 0 {
		cfg.Verbosity = fVerbosity
	}
	if fOverlays {
		cfg.DebugOverlays = true
	}

	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	p, err := batch.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := p.Run(ctx)
	if cerr := p.Close(); cerr != nil {
		log.Printf("closing report: %v\n", cerr)
	}
	log.Printf("%s\n", summary)
	log.Printf("Report written to %s\n", p.ReportFilename())

	if err != nil {
		log.Fatal(err)
	}
}
