package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/mycolab/shroom-api/internal/config"
	"github.com/mycolab/shroom-api/internal/handlers"
	"github.com/mycolab/shroom-api/internal/model"
	"github.com/mycolab/shroom-api/internal/service"
)

// version of the code, set at build time
var version string

func info() string {
	goVersion := runtime.Version()
	tstamp := time.Now().Format("2006-01-02")
	return fmt.Sprintf("shroom-api git=%s go=%s date=%s", version, goVersion, tstamp)
}

func setupLogger(cfg *config.Config) {
	log.SetFlags(log.LstdFlags)
	if cfg.Verbose > 0 {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	if cfg.LogFile != "" {
		rl, err := rotatelogs.New(cfg.LogFile + "-%Y%m%d")
		if err != nil {
			log.Fatalf("unable to set up log rotation for %s: %v", cfg.LogFile, err)
		}
		log.SetOutput(rl)
	}
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "config.yaml", "configuration file")
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information about the server")
	flag.Parse()
	if showVersion {
		fmt.Println(info())
		os.Exit(0)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("unable to parse config %s: %v", configFile, err)
	}
	setupLogger(cfg)
	if cfg.Verbose > 0 {
		log.Printf("%+v", cfg)
	}

	svc := service.New(cfg, func(cfg *config.Config, numClasses int) (model.Scorer, error) {
		return model.OpenONNX(cfg.Model, numClasses)
	})

	log.Printf("Loading model from %s", cfg.Model)
	if err := svc.Start(); err != nil {
		log.Fatalf("Failed to initialize inference service: %v", err)
	}
	defer svc.Close()
	log.Printf("Loaded %d mushroom classes", svc.Catalog().Len())

	handler := handlers.NewHandler(svc, cfg)

	log.Printf("Server starting on port %d", cfg.Port)
	log.Println("Endpoints:")
	log.Println("  GET  /         - Upload page")
	log.Println("  GET  /health   - Health check")
	log.Println("  GET  /docs     - API documentation")
	log.Println("  POST /predict  - Predict from image upload")

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), handler.Router()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
