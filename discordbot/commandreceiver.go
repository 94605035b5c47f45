package discordbot

import (
	"context"

	"github.com/metroinfo/metrobot/reconciler"
	"github.com/metroinfo/metrobot/types"
)

// CommandReceiver is used to send commands and exchange information with the code that set up a bot
type CommandReceiver interface {
	// TriggerReconcile is called when the bot wants an immediate reconciliation sweep
	TriggerReconcile()

	// LastReport is called when the bot wants to show the outcome of the latest sweep
	LastReport() *reconciler.Report

	// GetVersion is called when the bot wants to get the current server version
	GetVersion() (gitCommit string, buildDate string)

	// GetStats is called when the bot wants to get the current server stats
	GetStats() (dbOpenConnections, webTotalRequests int)
}

// StatusReader provides a recent, possibly cached, network status
type StatusReader interface {
	Latest(ctx context.Context) (types.Network, error)
}
