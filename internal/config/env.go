package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"pdproute/internal/model"
)

// LoadEnv reads .env style files into the process environment without
// overriding variables that are already set. With no files it tries ./.env
// and treats a missing file as fine.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ApplyEnv overlays PDP_* variables onto an instance:
//
//	PDP_STRATEGY, PDP_TIME_LIMIT_MS, PDP_SPAN_COEFFICIENT, PDP_ITERATIONS,
//	PDP_SEED, PDP_VEHICLE_COUNT, PDP_VEHICLE_CAPACITY, PDP_MAX_DETOUR_RATIO,
//	PDP_CAPACITY_MODE, PDP_FIRST_STOP
func ApplyEnv(in *model.ProblemIn) error {
	if v := os.Getenv("PDP_STRATEGY"); v != "" {
		in.Search.FirstSolutionStrategy = v
	}
	if v := os.Getenv("PDP_CAPACITY_MODE"); v != "" {
		in.CapacityMode = v
	}
	if v := os.Getenv("PDP_FIRST_STOP"); v != "" {
		in.FirstStop = v
	}
	ints := []struct {
		key string
		set func(int64)
	}{
		{"PDP_TIME_LIMIT_MS", func(n int64) { in.Search.TimeLimitMs = int(n) }},
		{"PDP_SPAN_COEFFICIENT", func(n int64) { in.Search.GlobalSpanCoefficient = &n }},
		{"PDP_ITERATIONS", func(n int64) { in.Search.IterationsLimit = int(n) }},
		{"PDP_SEED", func(n int64) { in.Search.Seed = n }},
		{"PDP_VEHICLE_COUNT", func(n int64) { in.VehicleCount = int(n) }},
		{"PDP_VEHICLE_CAPACITY", func(n int64) { in.VehicleCapacity = n }},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", e.key, v, err)
		}
		e.set(n)
	}
	if v := os.Getenv("PDP_MAX_DETOUR_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: PDP_MAX_DETOUR_RATIO=%q: %w", v, err)
		}
		in.MaxDetourRatio = f
	}
	return nil
}
