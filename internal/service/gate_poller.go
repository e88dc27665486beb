package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/imshubhamkaushik/deploypipe/internal/runner"
)

// GatePoller asks the static-analysis server for a project's quality
// gate verdict. Analysis runs server-side after submission, so the
// verdict endpoint reports a pending state until it completes.
type GatePoller struct {
	BaseURL    string
	ProjectKey string
	Client     *http.Client
}

func NewGatePoller(baseURL, projectKey string) *GatePoller {
	return &GatePoller{
		BaseURL:    baseURL,
		ProjectKey: projectKey,
		Client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type gateStatusResponse struct {
	ProjectStatus struct {
		Status string `json:"status"`
	} `json:"projectStatus"`
}

// VerdictFunc adapts the poller to the executor's gate contract.
func (gp *GatePoller) VerdictFunc() runner.VerdictFunc {
	return func(ctx context.Context) (runner.Verdict, string, error) {
		u := fmt.Sprintf(
			"%s/api/qualitygates/project_status?projectKey=%s",
			gp.BaseURL,
			url.QueryEscape(gp.ProjectKey),
		)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return runner.VerdictPending, "", err
		}
		resp, err := gp.Client.Do(req)
		if err != nil {
			return runner.VerdictPending, "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return runner.VerdictPending, "", fmt.Errorf(
				"gate server returned status %d", resp.StatusCode,
			)
		}

		var gsr gateStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&gsr); err != nil {
			return runner.VerdictPending, "", err
		}

		switch gsr.ProjectStatus.Status {
		case "OK":
			return runner.VerdictPassed, "", nil
		case "ERROR":
			return runner.VerdictFailed, "quality gate status ERROR", nil
		default:
			// IN_PROGRESS, NONE and anything unknown: keep polling
			return runner.VerdictPending, "", nil
		}
	}
}
