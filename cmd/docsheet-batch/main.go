package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docsheet/internal/config"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/pipeline"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	dataDir     = flag.String("data", "", "Path to data directory")
	inputDir    = flag.String("i", "", "Folder of document images to extract")
	outputFile  = flag.String("o", "", "Output file (.json for structured results, anything else for text)")
	docType     = flag.String("type", "invoice", "Document type: passport, check or invoice")
	concurrency = flag.Int("c", 0, "Max concurrent extractions (default: config workers)")
	timeout     = flag.Int("t", 0, "Per-file timeout in seconds (default: config job timeout)")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *inputDir == "" {
		fmt.Println("Error: input folder is required")
		printUsage()
		os.Exit(1)
	}
	if info, err := os.Stat(*inputDir); err != nil || !info.IsDir() {
		fmt.Printf("Error: input folder not found: %s\n", *inputDir)
		os.Exit(1)
	}
	if !extract.ValidType(*docType) {
		fmt.Printf("Error: unknown document type %q (expected passport, check or invoice)\n", *docType)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	provider, err := cfg.ActiveProvider()
	if err != nil {
		fmt.Printf("Error resolving vision provider: %v\n", err)
		os.Exit(1)
	}
	extractor := extract.NewExtractor(cfg.Vision.Provider, provider)

	batchCfg := pipeline.DefaultBatchConfig(cfg.Vision, cfg.Uploads.AllowedExts)
	if *concurrency > 0 {
		batchCfg.MaxConcurrency = *concurrency
	}
	if *timeout > 0 {
		batchCfg.Timeout = time.Duration(*timeout) * time.Second
	}

	fmt.Printf("Processing folder: %s\n", *inputDir)
	fmt.Printf("   Type: %s | Concurrency: %d | Timeout: %v\n\n", *docType, batchCfg.MaxConcurrency, batchCfg.Timeout)

	batch := pipeline.NewBatch(extractor, batchCfg, logger)
	result, err := batch.ProcessFolder(context.Background(), *inputDir, *docType, *outputFile)
	if err != nil {
		fmt.Printf("Error processing folder: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Summary())

	if *outputFile != "" {
		fmt.Printf("Results saved to: %s\n", *outputFile)
	}

	if result.Failed > 0 {
		fmt.Println("\nFailed files:")
		for _, item := range result.Items {
			if !item.Success {
				fmt.Printf("  - %s: %s\n", item.Filename, item.Error)
			}
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("docsheet-batch - offline folder extraction")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docsheet-batch -i <folder> [-o <output>] [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -i <folder>       Folder of document images (required)")
	fmt.Println("  -o <file>         Output file (.json or text, optional)")
	fmt.Println("  -type <type>      Document type: passport, check, invoice (default: invoice)")
	fmt.Println("  -c <n>            Max concurrent extractions")
	fmt.Println("  -t <sec>          Per-file timeout in seconds")
	fmt.Println("  -config <path>    Path to config file")
	fmt.Println("  -data <path>      Path to data directory")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  docsheet-batch -i ./scans -type check")
	fmt.Println("  docsheet-batch -i ./scans -type invoice -o results.json -c 5")
}
