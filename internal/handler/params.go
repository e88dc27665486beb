package handler

type CredentialParams struct {
	CredentialID  int64  `json:"credential_id"   param:"credential_id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	Description   string `json:"description"`
	SSHPrivateKey string `json:"ssh_private_key"`
	Secret        string `json:"secret"`
}

type AgentParams struct {
	AgentID           int64  `json:"agent_id"            param:"agent_id"`
	AgentCredentialID *int64 `json:"agent_credential_id"`
	Name              string `json:"name"`
	Hostname          string `json:"hostname"`
	Workspace         string `json:"workspace"`
	Description       string `json:"description"`
	OSType            string `json:"os_type"`
}

type PipelineParams struct {
	PipelineID      int64   `json:"pipeline_id"       param:"pipeline_id"`
	PipelineAgentID int64   `json:"pipeline_agent_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Repository      string  `json:"repository"`
	ScriptPath      string  `json:"script_path"`
	Parameters      *string `json:"parameters"`
	Schedule        *string `json:"schedule"`
	ScheduleBranch  *string `json:"schedule_branch"`
}

type RunParams struct {
	PipelineID int64  `param:"pipeline_id"`
	RunID      int64  `param:"run_id"`
	Branch     string `param:"branch"      json:"branch"`
}

type ListRunsParams struct {
	PipelineID int64 `param:"pipeline_id"`
	Page       int64 `                    query:"page"`
}

type APIKeyParams struct {
	ID int64 `param:"id"`
}

type ConfigParams struct {
	QueueSize                int64 `json:"queue_size"`
	DeployGraceSeconds       int64 `json:"deploy_grace_seconds"`
	GatePollSeconds          int64 `json:"gate_poll_seconds"`
	GateTimeoutSeconds       int64 `json:"gate_timeout_seconds"`
	DefaultStepTimeoutSecs   int64 `json:"default_step_timeout_seconds"`
	SSHConnectTimeoutSeconds int64 `json:"ssh_connect_timeout_seconds"`
}
