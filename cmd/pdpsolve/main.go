// Command pdpsolve reads a pickup and delivery instance, searches it and prints
// the routes. With -compare it searches once per construction strategy in
// parallel and reports which strategies produced a result. With -redis-url the
// reports are published; -watch and -fetch read them back without solving.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	redis "github.com/redis/go-redis/v9"

	"pdproute/internal/buildinfo"
	"pdproute/internal/config"
	"pdproute/internal/metrics"
	"pdproute/internal/model"
	"pdproute/internal/opt"
	"pdproute/internal/publish"
	"pdproute/internal/report"
	"pdproute/internal/routing"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Printf("pdpsolve: ignoring .env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("pdpsolve: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pdpsolve", flag.ContinueOnError)
	cfg, err := config.FromFlags(fs, args)
	if err != nil {
		return err
	}
	if cfg.Version {
		if cfg.Format == "json" {
			return json.NewEncoder(out).Encode(buildinfo.Info())
		}
		_, err := fmt.Fprintf(out, "pdpsolve %s\n", buildinfo.String())
		return err
	}
	if cfg.EnvFile != "" {
		if err := config.LoadEnv(cfg.EnvFile); err != nil {
			return err
		}
	}
	if cfg.Watch > 0 || cfg.Fetch != "" {
		return readBack(ctx, cfg, out)
	}
	src, err := config.Open(cfg.Instance)
	if err != nil {
		return err
	}
	in, err := src.Load()
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&in); err != nil {
		return err
	}
	log.Printf("pdpsolve: version=%s source=%s locations=%d", buildinfo.String(), src.Name(), len(in.Locations))

	var reports []model.Report
	if len(cfg.Compare) > 0 {
		reports, err = compare(ctx, in, cfg, out)
	} else {
		var rep model.Report
		rep, err = solveOne(ctx, in)
		reports = []model.Report{rep}
	}
	if err != nil {
		return err
	}

	for _, rep := range reports {
		if err := write(out, cfg.Format, rep); err != nil {
			return err
		}
	}
	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if cfg.RedisURL != "" {
		sink, err := publish.NewRedisSink(cfg.RedisURL, cfg.Channel, cfg.Secret)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := publish.PublishAll(ctx, sink, reports); err != nil {
			return err
		}
		log.Printf("pdpsolve: published reports=%d channel=%s", len(reports), cfg.Channel)
	}
	return nil
}

// readBack prints the stored report of -fetch, or the next -watch reports
// arriving on the channel. With a secret set, unsigned or forged envelopes are
// rejected.
func readBack(ctx context.Context, cfg config.CLIConfig, out io.Writer) error {
	sink, err := publish.NewRedisSink(cfg.RedisURL, cfg.Channel, cfg.Secret)
	if err != nil {
		return err
	}
	defer sink.Close()
	if cfg.Fetch != "" {
		env, err := sink.Latest(ctx, cfg.Fetch)
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("no stored report for run %s", cfg.Fetch)
		}
		if err != nil {
			return err
		}
		return writeEnvelope(out, cfg, env)
	}
	envs, err := sink.Subscribe(ctx)
	if err != nil {
		return err
	}
	log.Printf("pdpsolve: watching channel=%s reports=%d", cfg.Channel, cfg.Watch)
	for n := 0; n < cfg.Watch; n++ {
		env, ok := <-envs
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("watch %s: subscription closed after %d reports", cfg.Channel, n)
		}
		if err := writeEnvelope(out, cfg, env); err != nil {
			return err
		}
	}
	return nil
}

func writeEnvelope(out io.Writer, cfg config.CLIConfig, env publish.Envelope) error {
	if cfg.Secret != "" && !env.Verified(cfg.Secret) {
		return fmt.Errorf("envelope %s: bad signature", env.ID)
	}
	rep, err := env.Report()
	if err != nil {
		return err
	}
	return write(out, cfg.Format, rep)
}

// solveOne searches a single model. Infeasible and timed out searches still
// yield a report carrying their status.
func solveOne(ctx context.Context, in model.ProblemIn) (model.Report, error) {
	m, params, err := config.Build(in)
	if err != nil {
		return model.Report{}, err
	}
	res, err := opt.Solve(ctx, m, params)
	if err != nil && !isOutcome(err) {
		return model.Report{}, err
	}
	return reportOf(m, in, res)
}

func compare(ctx context.Context, in model.ProblemIn, cfg config.CLIConfig, out io.Writer) ([]model.Report, error) {
	names := cfg.Compare
	if len(names) == 1 && strings.EqualFold(names[0], "all") {
		names = nil
		for _, s := range opt.Strategies() {
			names = append(names, s.String())
		}
	}
	jobs := make([]opt.Job, len(names))
	for i, name := range names {
		variant := in
		variant.Search.FirstSolutionStrategy = name
		m, params, err := config.Build(variant)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", name, err)
		}
		jobs[i] = opt.Job{Model: m, Params: params}
	}
	results, err := opt.SolveJobs(ctx, jobs, cfg.Workers)
	if err != nil && !allOutcomes(err) {
		return nil, err
	}
	// keep JSON output parseable
	progress := out
	if cfg.Format == "json" {
		progress = log.Writer()
	}
	reports := make([]model.Report, len(jobs))
	for i, res := range results {
		if res.Status == routing.Solved {
			fmt.Fprintf(progress, "%s GAVE RESULT\nTotal exec time: %d millis\n", names[i], res.Metrics.Elapsed.Milliseconds())
		} else {
			fmt.Fprintf(progress, "%s couldn't give result (%s)\n", names[i], res.Status)
		}
		if reports[i], err = reportOf(jobs[i].Model, in, res); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func reportOf(m *routing.Model, in model.ProblemIn, res opt.Result) (model.Report, error) {
	rep, err := report.FromResult(m, res)
	if err != nil {
		return rep, err
	}
	rep.Name = in.Name
	return rep, nil
}

func isOutcome(err error) bool {
	return errors.Is(err, routing.ErrInfeasible) || errors.Is(err, routing.ErrTimedOut)
}

// allOutcomes reports whether every joined job error is a search outcome.
func allOutcomes(err error) bool {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return isOutcome(err)
	}
	for _, e := range joined.Unwrap() {
		if !isOutcome(e) {
			return false
		}
	}
	return true
}

func write(out io.Writer, format string, rep model.Report) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return report.Render(out, rep)
}
