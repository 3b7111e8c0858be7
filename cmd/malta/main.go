package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/evanphx/malta/config"
	clog "github.com/evanphx/malta/log"
	"github.com/spf13/pflag"
)

var (
	fConfig   = pflag.StringP("config", "c", "", "YAML file describing the system")
	fChildren = pflag.IntP("children", "n", 3, "children the supervisor starts")
	fLives    = pflag.IntP("lives", "l", 3, "restarts the supervisor may perform")
	fDump     = pflag.Bool("dump", false, "dump the process table once the children are started")
	fVerbose  = pflag.BoolP("verbose", "v", false, "trace kernel activity")
	fTimeout  = pflag.Duration("timeout", 30*time.Second, "give up when the system stalls this long")
)

func main() {
	pflag.Parse()

	clog.EnableDebug()

	if *fVerbose {
		clog.SetVerbose(true)
	}

	cfg := config.Default()

	if *fConfig != "" {
		var err error

		cfg, err = config.Load(*fConfig)
		if err != nil {
			log.Fatal(err)
		}
	}

	opts := options{
		children: *fChildren,
		lives:    *fLives,
	}

	if *fDump {
		opts.dump = os.Stderr
	}

	ctx, cancel := context.WithTimeout(context.Background(), *fTimeout)
	defer cancel()

	sys, err := boot(ctx, cfg, opts, os.Stdout, clog.L)
	if err != nil {
		log.Fatal(err)
	}

	if err := sys.run(); err != nil {
		log.Fatal(err)
	}
}
