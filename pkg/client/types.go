package client

import (
	"github.com/loykin/extbox/internal/history"
	"github.com/loykin/extbox/internal/module"
	"github.com/loykin/extbox/internal/present"
	"github.com/loykin/extbox/internal/scheduler"
	"github.com/loykin/extbox/internal/snapshot"
)

// Response shapes shared with the server.
type (
	Status        = scheduler.Status
	ModuleStatus  = scheduler.ModuleStatus
	Presentation  = present.Presentation
	SnapshotEntry = snapshot.Entry
	DataPoints    = module.DataPoints
	Event         = history.Event
)

// ScreenEvent reports a display state change.
type ScreenEvent struct {
	On bool `json:"on"`
}

// StepsEvent carries a cumulative step counter reading.
type StepsEvent struct {
	Raw float64 `json:"raw"`
}

type PrefValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OrderRequest replaces the module display order.
type OrderRequest struct {
	Order []string `json:"order"`
}

type UnlockResult struct {
	Counted bool `json:"counted"`
}

type StepsResult struct {
	Added int64 `json:"added"`
}

type FapResult struct {
	Today int `json:"today"`
}

// SpeedTestResult tells whether a run started; Status is the module's
// current download text, which explains a refusal.
type SpeedTestResult struct {
	Started bool   `json:"started"`
	Status  string `json:"status"`
}

// OKResponse is returned by commands without a payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
