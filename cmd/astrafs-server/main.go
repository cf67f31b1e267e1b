// Command astrafs-server serves files from a sandboxed root directory
// over the astrafs TCP protocol.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"astrafs-server/internal/config"
	"astrafs-server/internal/recorder"
	"astrafs-server/internal/server"
	"astrafs-server/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	listen := flag.String("listen", "", "listen address override, e.g. :7878")
	root := flag.String("root", "", "served root directory override")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *root != "" {
		cfg.Root = *root
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	rec := recorder.New(os.Stdout, cfg.LogFile)
	defer rec.Close()

	srv, err := server.New(cfg, rec)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}

	// Bind before serving so a taken port fails the process immediately.
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.Listen, err)
	}

	rec.Recordf("astrafs-server %s serving %s", version.Get().String(), srv.Root())
	if err := srv.Serve(ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// loadConfig reads the config file, but a missing file at the default
// location just means "run with defaults". An explicitly passed path
// must exist.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !flagPassed("config") {
		return config.Default(), nil
	}
	return config.Config{}, err
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}
