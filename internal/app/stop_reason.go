package app

import (
	"os"
	"syscall"
)

// StopReason is logged when the app stops.
type StopReason string

const (
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopSIGHUP     StopReason = "sighup"
	StopSIGQUIT    StopReason = "sigquit"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// ShutdownSignals all lead to a clean Stop, shutdown snapshot included.
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

func SignalReason(sig os.Signal) StopReason {
	switch sig {
	case os.Interrupt:
		return StopSIGINT
	case syscall.SIGTERM:
		return StopSIGTERM
	case syscall.SIGHUP:
		return StopSIGHUP
	case syscall.SIGQUIT:
		return StopSIGQUIT
	default:
		return StopSignal
	}
}
