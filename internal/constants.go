package internal

const (
	DotEnvPath              = "./.env"
	MigrationsDir           = "migrations"
	ArtifactsDir            = "artifacts"
	RunDirLayout            = "20060102_150405000"
	DBTimestampLayout       = "2006-01-02 15:04:05"
	WebhookTriggerKeyHeader = "X-DeployPipe-Webhook-Key"
	APIKeyHeader            = "X-DeployPipe-API-Key"
)
