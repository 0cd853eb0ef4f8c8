// Package store provides the in-memory status store for the tdm daemon.
package store

import "github.com/Unidata/tds-sub001/pkg/models"

// The store's records are the control API's wire types.
type (
	CollectionStatus = models.CollectionStatus
	State            = models.DaemonState
	Update           = models.StateUpdate
	UpdateType       = models.StateUpdateType
)

const (
	UpdateEvent        = models.StateUpdateEvent
	UpdateRunStarted   = models.StateUpdateRunStarted
	UpdateRunFinished  = models.StateUpdateRunFinished
	UpdateConfigReload = models.StateUpdateConfigReload
)
