// Command trainmodel trains the global anomaly model and writes it to disk.
//
// By default it trains on synthetic typist traffic, which is how a fresh
// deployment bootstraps before real feature history exists:
//
//	go run ./cmd/trainmodel -out data/models/global.json
//
// With -from-db it trains on stored feature vectors instead (DATABASE_URL
// must be set):
//
//	go run ./cmd/trainmodel -from-db -out data/models/global.json
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/sentra-auth/sentra/internal/anomaly"
	"github.com/sentra-auth/sentra/internal/behavior"
	"github.com/sentra-auth/sentra/internal/config"
)

func main() {
	var (
		out           = flag.String("out", config.DefaultModelPath, "output path for the trained model")
		samples       = flag.Int("samples", 2000, "synthetic sample count (ignored with -from-db)")
		seed          = flag.Uint64("seed", uint64(time.Now().UnixNano()), "synthetic data seed")
		trees         = flag.Int("trees", config.DefaultModelTrees, "ensemble size")
		contamination = flag.Float64("contamination", config.DefaultModelContamination, "expected anomaly fraction")
		fromDB        = flag.Bool("from-db", false, "train on stored feature vectors instead of synthetic data")
		limit         = flag.Int("limit", 10000, "max feature vectors to load with -from-db")
	)
	flag.Parse()

	var data [][]float64
	if *fromDB {
		var err error
		data, err = loadStoredFeatures(*limit)
		if err != nil {
			log.Fatalf("load stored features: %v", err)
		}
		log.Printf("loaded %d feature vectors from database", len(data))
	} else {
		data = anomaly.SyntheticTrainingSet(*samples, *seed)
		log.Printf("generated %d synthetic samples (seed %d)", len(data), *seed)
	}

	model, err := anomaly.Train(data,
		anomaly.WithTrees(*trees),
		anomaly.WithContamination(*contamination),
	)
	if err != nil {
		log.Fatalf("train model: %v", err)
	}

	if err := model.Save(*out); err != nil {
		log.Fatalf("save model: %v", err)
	}
	log.Printf("model saved: path=%s trees=%d samples=%d score_lo=%.4f score_hi=%.4f",
		*out, len(model.Trees), model.Samples, model.ScoreLo, model.ScoreHi)
}

func loadStoredFeatures(limit int) ([][]float64, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required with -from-db")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := behavior.NewPostgresStore(db)
	vectors, err := store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	data := make([][]float64, len(vectors))
	for i, fv := range vectors {
		data[i] = fv.Array()
	}
	return data, nil
}
