package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"rlforseg/pkg/config"
	"rlforseg/pkg/preprocess"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing raw/, gt/ and boundary/ images")
	outputDir := flag.String("output", "data", "Directory receiving graph_data/ and pix_data/")
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	numCores := flag.Int("cores", 0, "Number of images processed concurrently (default: from config)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(*debug || cfg.Processing.Verbose)

	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *saveIntermediary {
		cfg.Processing.SaveIntermediaryResults = true
	}

	params := &preprocess.Params{
		InputDir:                *inputDir,
		OutputDir:               *outputDir,
		NumCores:                cfg.Processing.NumCores,
		SaveIntermediaryResults: cfg.Processing.SaveIntermediaryResults,
		IntermediaryDir:         filepath.Join(*outputDir, *intermediaryDir),
	}

	logger.WithFields(logrus.Fields{
		"input":  params.InputDir,
		"output": params.OutputDir,
		"method": cfg.Segmentation.Method,
		"cores":  params.NumCores,
	}).Info("Starting preprocessing")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	preprocessor := preprocess.NewPreprocessor(params, cfg, logger)
	if err := preprocessor.Process(ctx); err != nil {
		logger.WithError(err).Fatal("Preprocessing failed")
	}
	processingTime := time.Since(startTime)

	summaries := preprocessor.Summaries()
	fmt.Printf("\nPreprocessed %d images in %.2f seconds\n", len(summaries), processingTime.Seconds())
	fmt.Printf("%8s %10s %8s %8s %12s\n", "image", "size", "nodes", "edges", "diff_to_gt")
	for _, s := range summaries {
		fmt.Printf("%8d %10s %8d %8d %12.3f\n",
			s.Image, fmt.Sprintf("%dx%d", s.Width, s.Height), s.Nodes, s.Edges, s.DiffToGT)
	}

	if params.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", params.IntermediaryDir)
	}
}

// initLogger configures text output with debug level when debugMode is set,
// and JSON output at info level otherwise
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
