package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/arcwatch/attribution-hub/internal/artifactory"
	"github.com/arcwatch/attribution-hub/internal/log"
)

// Small diagnostic client for poking the build server directly. Useful for
// checking credentials and connectivity before wiring up a full run.
func main() {
	baseFlag := flag.String("base-url", "", "build server base URL")
	tokenFlag := flag.String("token", "", "build server access token")
	projectFlag := flag.String("project", "", "build server project key")
	modeFlag := flag.String("mode", "ping", "probe mode. options: ping|version|builds")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	logger := log.NewLogger(ctx)

	client, err := artifactory.NewClient(*baseFlag, *tokenFlag, *projectFlag, nil, logger)
	if err != nil {
		logger.Fatalf("could not create client: %v", err)
	}

	switch *modeFlag {
	case "ping":
		if err := client.Ping(ctx); err != nil {
			logger.Fatalf("ping failed: %v", err)
		}
		logger.Info("build server is reachable")
	case "version":
		version, err := client.SystemVersion(ctx)
		if err != nil {
			logger.Fatalf("version probe failed: %v", err)
		}
		logger.Info("build server version", zap.String("version", version))
	case "builds":
		builds, err := client.ListBuilds(ctx)
		if err != nil {
			logger.Fatalf("listing builds failed: %v", err)
		}
		for _, build := range builds {
			logger.Info("build",
				zap.String("name", build.Name),
				zap.String("lastStarted", build.LastStarted))
		}
		logger.Info("listed builds", zap.Int("count", len(builds)))
	default:
		logger.Fatalf("unknown mode: %s", *modeFlag)
	}
}
