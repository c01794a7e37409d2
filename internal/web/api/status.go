package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/edgecam/internal/conf"
	"github.com/gowvp/edgecam/internal/core/credential"
	"github.com/gowvp/edgecam/internal/core/pipeline"
	"github.com/gowvp/edgecam/internal/core/recording"
	"github.com/gowvp/edgecam/internal/core/telemetry"
)

type pipelineStats interface {
	Stats() pipeline.Stats
}

type telemetryStats interface {
	Stats() telemetry.Stats
}

type credentialState interface {
	State() credential.State
}

// StatusAPI 运行状态
type StatusAPI struct {
	conf       *conf.Bootstrap
	pipeline   pipelineStats
	telemetry  telemetryStats
	creds      credentialState
	recordings recording.Core
}

// NewStatusAPI telemetry 与 creds 未启用时可为 nil
func NewStatusAPI(bc *conf.Bootstrap, p *pipeline.Orchestrator, t *telemetry.Client, creds *credential.Manager, r recording.Core) StatusAPI {
	s := StatusAPI{conf: bc, pipeline: p, recordings: r}
	if t != nil {
		s.telemetry = t
	}
	if creds != nil {
		s.creds = creds
	}
	return s
}

type getHealthOutput struct {
	Version string    `json:"version"`
	StartAt time.Time `json:"start_at"`
	State   string    `json:"state"`
}

func (a StatusAPI) getHealth(_ *gin.Context, _ *struct{}) (getHealthOutput, error) {
	return getHealthOutput{
		Version: a.conf.BuildVersion,
		StartAt: startRuntime,
		State:   a.pipeline.Stats().State,
	}, nil
}

type getStatsOutput struct {
	Pipeline   pipeline.Stats          `json:"pipeline"`
	Telemetry  *telemetry.Stats        `json:"telemetry,omitempty"`
	Credential string                  `json:"credential,omitempty"`
	Clips      []recording.StatusCount `json:"clips"`
	Uptime     string                  `json:"uptime"`
}

func (a StatusAPI) getStats(c *gin.Context, _ *struct{}) (getStatsOutput, error) {
	out := getStatsOutput{
		Pipeline: a.pipeline.Stats(),
		Uptime:   time.Since(startRuntime).Truncate(time.Second).String(),
	}
	if a.telemetry != nil {
		s := a.telemetry.Stats()
		out.Telemetry = &s
	}
	if a.creds != nil {
		out.Credential = a.creds.State().String()
	}
	counts, err := a.recordings.CountByStatus(c.Request.Context())
	if err != nil {
		return out, err
	}
	out.Clips = counts
	return out, nil
}
