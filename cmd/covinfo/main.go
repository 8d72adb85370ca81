package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/TuSKan/coverage"
	"github.com/TuSKan/coverage/collection"
	"github.com/TuSKan/coverage/internal/logger"
	"github.com/TuSKan/coverage/zarr"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging (or set COVERAGE_VERBOSE=true env var)")
	storeFlag := flag.String("store", "", "bucket URL of the store, e.g. file:///data/gfs (or set COVERAGE_STORE env var)")
	indexFlag := flag.String("index", zarr.DefaultIndexKey, "key of the collection index inside the bucket")
	concurrencyFlag := flag.Int("concurrency", zarr.DefaultConcurrency, "maximum number of slabs read in parallel")
	runtimeTolFlag := flag.Float64("runtime-tolerance", collection.DefaultRuntimeTolerance, "relative tolerance for merging runtime axes")
	coverageFlag := flag.String("coverage", "", "read this coverage and print summary statistics")
	subsetFlag := flag.StringToString("subset", nil, "subset parameters for --coverage, e.g. 'runtime=latest,vertCoord=500,latlonBB=30;50;-110;-90' (bounding box numbers are separated by ';' or spaces)")
	flag.Parse()

	if env := os.Getenv("COVERAGE_STORE"); env != "" {
		*storeFlag = env
	}
	if env := os.Getenv("COVERAGE_VERBOSE"); env != "" {
		if v, err := strconv.ParseBool(env); err == nil {
			*verboseFlag = v
		}
	}
	if *storeFlag == "" {
		return fmt.Errorf("--store is required")
	}

	log := logger.New(*verboseFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := zarr.Open(ctx, zarr.Config{
		URL:         *storeFlag,
		IndexKey:    *indexFlag,
		Concurrency: *concurrencyFlag,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	datasets, err := store.Datasets(collection.Options{Logger: log, RuntimeTolerance: *runtimeTolFlag})
	if err != nil {
		return err
	}
	log.Info("collection loaded", "collection", store.Collection().Name, "datasets", len(datasets))

	if *coverageFlag == "" {
		for _, d := range datasets {
			fmt.Println(d.String())
		}
		return nil
	}

	params, err := coverage.ParseSubsetParams(*subsetFlag)
	if err != nil {
		return err
	}
	for _, d := range datasets {
		cov, ok := d.FindCoverage(*coverageFlag)
		if !ok {
			continue
		}
		arr, err := cov.ReadData(ctx, params)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
		printSummary(d, arr)
	}
	return nil
}

func printSummary(d *coverage.Dataset, arr *coverage.GeoReferencedArray) {
	var values []float64
	missing := 0
	arr.Data.ConstFlatData(func(flat any) {
		for _, v := range flat.([]float32) {
			if math.IsNaN(float64(v)) {
				missing++
				continue
			}
			values = append(values, float64(v))
		}
	})

	fmt.Printf("%s %s shape=%v\n", d.Name(), arr.CoverageName, arr.Shape)
	fmt.Printf("  coordsys: %s\n", arr.CoordSys.Name())
	if set, err := arr.CoordSys.CoordsSet(); err == nil {
		fmt.Printf("  dims: %v\n", set.DimNames())
	}
	fmt.Printf("  missing: %d\n", missing)
	if len(values) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(values, nil)
	fmt.Printf("  min=%g max=%g mean=%g std=%g\n", floats.Min(values), floats.Max(values), mean, std)
}
