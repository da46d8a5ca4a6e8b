package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"rlforseg/internal/models"
	"rlforseg/pkg/config"
	"rlforseg/pkg/preprocess"
	"rlforseg/pkg/rag"
	"rlforseg/pkg/reward"
	"rlforseg/pkg/segmentation"
	"rlforseg/pkg/store"
	"rlforseg/pkg/visualization"
)

func main() {
	// Parse command line arguments
	dataDir := flag.String("data", "data", "Directory holding graph_data/ written by spgprep")
	imageNum := flag.Int("image", -1, "Number of the stored image to score against")
	predPath := flag.String("prediction", "", "Predicted instance label PNG")
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	edges := flag.Bool("edges", false, "Print per-edge instead of per-superpixel rewards")
	heatmap := flag.String("heatmap", "", "Optional PNG path for a rendering of the superpixel rewards")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Validate inputs
	if *predPath == "" || *imageNum < 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(*debug || cfg.Processing.Verbose)

	graph, err := store.New(*dataDir).LoadGraph(*imageNum)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load graph data")
	}
	pred, err := preprocess.LoadLabels(*predPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load prediction")
	}
	if pred.Width != graph.NodeLabeling.Width || pred.Height != graph.NodeLabeling.Height {
		logger.WithFields(logrus.Fields{
			"prediction":  fmt.Sprintf("%dx%d", pred.Width, pred.Height),
			"superpixels": fmt.Sprintf("%dx%d", graph.NodeLabeling.Width, graph.NodeLabeling.Height),
		}).Fatal("Prediction does not match the stored superpixels")
	}
	pred, _ = segmentation.Relabel(pred)

	rwCfg := cfg.RewardConfig()
	rwCfg.UseEdgeScore = *edges
	var scorer reward.Scorer = reward.NewShapeScorer(rwCfg, logger)
	scores := scorer.Score([]reward.Input{{
		Prediction:    pred,
		Superpixels:   graph.NodeLabeling,
		DirectedEdges: rag.DirectedEdges(graph.Edges),
	}})

	logger.WithFields(logrus.Fields{
		"image":  *imageNum,
		"nodes":  graph.NodeLabeling.Max() + 1,
		"edges":  len(graph.Edges),
		"scores": len(scores),
	}).Info("Scored prediction")

	if *edges {
		fmt.Printf("%6s %6s %8s\n", "u", "v", "reward")
		for i, e := range graph.Edges {
			fmt.Printf("%6d %6d %8.4f\n", e.U, e.V, scores[i])
		}
	} else {
		fmt.Printf("%10s %8s\n", "superpixel", "reward")
		for id, s := range scores {
			fmt.Printf("%10d %8.4f\n", id, s)
		}
	}

	if *heatmap != "" {
		if err := saveHeatmap(graph.NodeLabeling, pred, rwCfg, logger, *heatmap); err != nil {
			logger.WithError(err).Error("Failed to save heatmap")
		}
	}
}

// saveHeatmap renders superpixel rewards regardless of the edge setting
func saveHeatmap(sp, pred *models.LabelMap, cfg reward.Config, logger *logrus.Logger, path string) error {
	cfg.UseEdgeScore = false
	scores := reward.NewShapeScorer(cfg, logger).Score([]reward.Input{{Prediction: pred, Superpixels: sp}})

	lo := cfg.Baseline - cfg.EmptyPenalty - cfg.DegeneratePenalty
	img, err := visualization.NewViewer(sp.Width, sp.Height).ScoreImage(sp, scores, lo, cfg.Baseline+1)
	if err != nil {
		return err
	}
	return visualization.SaveImage(img, path)
}

// initLogger configures text output with debug level when debugMode is set,
// and JSON output at info level otherwise
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

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
