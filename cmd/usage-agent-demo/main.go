// Command usage-agent-demo wires a Usage Agent and a Supergraph Fetcher
// together against environment-supplied configuration, to exercise the
// module end-to-end outside of a test harness.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.hive.dev/agent/agent"
	"go.hive.dev/agent/common"
	"go.hive.dev/agent/config"
	"go.hive.dev/agent/fetcher"
	"go.hive.dev/agent/report"
)

func main() {
	logger := common.AgentLogger("usage-agent-demo")
	env := config.NewEnvConfig("HIVE")

	token := env.GetString("TOKEN", "")
	if token == "" {
		logger.Error("HIVE_TOKEN is required")
		os.Exit(1)
	}

	validator := config.NewValidator()
	validator.RequireString("HIVE_TOKEN", token)
	if err := validator.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	usageAgent, err := agent.NewBuilder().
		Token(token).
		Endpoint(env.GetString("ENDPOINT", agent.DefaultEndpoint)).
		TargetID(env.GetString("TARGET_ID", "")).
		BufferSize(env.GetInt("BUFFER_SIZE", 1000)).
		FlushInterval(env.GetDuration("FLUSH_INTERVAL", 5*time.Second)).
		Logger(logger).
		Build()
	if err != nil {
		logger.WithError(err).Error("failed to build usage agent")
		os.Exit(1)
	}

	var supergraphFetcher *fetcher.Fetcher
	if cdnKey := env.GetString("CDN_KEY", ""); cdnKey != "" {
		supergraphFetcher, err = fetcher.New(fetcher.Config{
			Endpoints: env.GetStringSlice("CDN_ENDPOINTS", nil),
			Key:       cdnKey,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to build supergraph fetcher")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	usageAgent.StartFlushInterval(ctx)
	defer usageAgent.StopFlushInterval()

	if supergraphFetcher != nil {
		worker := time.NewTicker(30 * time.Second)
		defer worker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-worker.C:
					if _, err := supergraphFetcher.Fetch(ctx); err != nil {
						logger.WithError(err).Warn("supergraph fetch failed")
					}
				}
			}
		}()
	}

	usageAgent.AddReport(report.ExecutionReport{
		OperationBody: "{ __typename }",
		OK:            true,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	usageAgent.Flush(context.Background())
	logger.Info("shutting down")
}
