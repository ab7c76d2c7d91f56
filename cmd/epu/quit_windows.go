package main

import "go.uber.org/zap"

// registerQuitHandler is a no-op: Windows has no SIGQUIT.
func registerQuitHandler(*zap.SugaredLogger) {}
