package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LinglingXiang/exodus-gw/cmd/exodus-gw-migrate/cmds"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

func runApp(ctx context.Context) int {
	err := cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)
		return migrationerrors.ExitCode(err)
	}

	return migrationerrors.ExitNormal
}

func main() {
	logger.InitSlog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	code := runApp(ctx)
	cancel()
	os.Exit(code)
}
