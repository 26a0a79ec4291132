package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"airquality/internal/adapters/config"
	"airquality/internal/domain/features"
	"airquality/internal/domain/prediction"
	"airquality/internal/ml"
	"airquality/internal/services/scoring"
	"airquality/pkg/logger"
)

func main() {
	co := flag.String("co", "", "CO AQI value")
	ozone := flag.String("ozone", "", "Ozone AQI value")
	no2 := flag.String("no2", "", "NO2 AQI value")
	pm25 := flag.String("pm25", "", "PM2.5 AQI value")
	country := flag.String("country", "", "Country name, unknown names fall back to the catch-all category")
	mode := flag.String("mode", string(prediction.ModeClassify), "classify or regress")
	modelPath := flag.String("model", "", "Model path (defaults to MODEL_CLASSIFIER_PATH or MODEL_REGRESSOR_PATH)")
	schemaPath := flag.String("schema", "", "Schema YAML (defaults to SCHEMA_PATH, then the built-in schema)")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for the model to load")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.Get()

	m := prediction.Mode(*mode)
	if !m.Valid() {
		log.Fatalf("unknown mode %q", *mode)
	}

	path := *modelPath
	if path == "" {
		path = cfg.Model.ClassifierPath
		if m == prediction.ModeRegress {
			path = cfg.Model.RegressorPath
		}
	}
	if *schemaPath == "" {
		*schemaPath = cfg.Schema.Path
	}

	schema, err := features.LoadSchemaFile(*schemaPath)
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	if info, err := os.Stat(path); err == nil {
		log.Infow("Model artifact", "path", path, "size", humanize.Bytes(uint64(info.Size())),
			"modified", humanize.Time(info.ModTime()))
	}

	handle := ml.NewHandle(m, path, ml.NewONNXLoader(ml.ONNXOptions{
		InputName:         cfg.Model.InputName,
		OutputName:        cfg.Model.OutputName,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
	}))

	svc, err := scoring.NewService(scoring.Deps{
		Schema:  schema,
		Handles: []*ml.Handle{handle},
		Runner:  ml.NewAdapter(cfg.Model.InferenceTimeout),
	})
	if err != nil {
		log.Fatalf("failed to create scoring service: %v", err)
	}
	defer svc.Close()

	start := time.Now()
	svc.LoadAll()

	waitCtx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()
	if err := svc.WaitReady(waitCtx); err != nil {
		fmt.Println(handle.StatusText())
		os.Exit(1)
	}
	log.Infow(handle.StatusText(), "load_time", time.Since(start).Round(time.Millisecond))

	out, err := svc.Predict(context.Background(), m, features.RawInput{
		CO:      *co,
		Ozone:   *ozone,
		NO2:     *no2,
		PM25:    *pm25,
		Country: *country,
	}, scoring.Options{Source: scoring.SourceCLI})
	if err != nil {
		fmt.Println(prediction.UserMessage(err))
		log.Debugw("Prediction failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(out.Result.Display)
}
