package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"dankbot/internal/app"

	"github.com/coreos/go-systemd/v22/daemon"
)

func main() {
	var cfgPath, envFile string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json or yaml")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file")
	flag.Parse()

	sigCh := make(chan os.Signal, len(app.ShutdownSignals))
	signal.Notify(sigCh, app.ShutdownSignals...)
	defer signal.Stop(sigCh)

	a, err := app.NewApp(cfgPath, envFile)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	// not running under systemd is fine
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.SignalReason(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		// already logged by Stop
		stopCancel()
		os.Exit(1)
	}
	if reason == app.StopFatalError {
		fmt.Println("fatal:", a.Err())
		stopCancel()
		os.Exit(1)
	}
}
