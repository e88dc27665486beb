package store

import (
	"context"
)

type Pipeline struct {
	PipelineID      int64
	PipelineAgentID int64
	Name            string
	Description     string
	// Git repository path
	Repository string
	// Pipeline script path within the repository
	ScriptPath string
	// Deployment parameters (namespace, registry, region overrides) as
	// a JSON object, shared read-only with every run of the pipeline
	Parameters *string
	// Pipeline schedule in cron syntax
	Schedule *string
	// Git branch for scheduled run
	ScheduleBranch *string
	// Schduled job ID
	ScheduleJobID *string
}

// PipelineRunData joins the pipeline with its agent and the agent's
// credential, everything a run needs to execute.
type PipelineRunData struct {
	PipelineID   int64
	Name         string
	AgentID      int64
	OSType       string
	CredentialID *int64
	Repository   string
	ScriptPath   string
	Parameters   *string
	Hostname     string
	Workspace    string
	Username     *string
	SecretHash   *string
	Secret       []byte
}

func (prd *PipelineRunData) IsLocalAgent() bool {
	return prd.Hostname == "local" || prd.Hostname == ""
}

type PipelineStore interface {
	CreatePipeline(
		context.Context,
		int64,
		string,
		string,
		string,
		string,
		*string,
	) (*Pipeline, error)
	ReadPipelineByID(context.Context, int64) (*Pipeline, error)
	ReadPipelineRunData(context.Context, int64) (*PipelineRunData, error)
	UpdatePipeline(context.Context, int64, int64, string, string, string, string, *string) error
	UpdatePipelineSchedule(context.Context, int64, *string, *string, *string) error
	UpdatePipelineScheduleJobID(context.Context, int64, *string) error
	DeletePipeline(context.Context, int64) error
	ListPipelines(context.Context) ([]*Pipeline, error)
	ListScheduledPipelines(context.Context) ([]*Pipeline, error)
}
