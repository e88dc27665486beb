package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imshubhamkaushik/deploypipe/internal"
	"github.com/imshubhamkaushik/deploypipe/internal/service"
	"github.com/imshubhamkaushik/deploypipe/internal/store"
	"github.com/imshubhamkaushik/deploypipe/internal/util"
	"github.com/labstack/echo/v4"
)

const maxRunsPerPage int64 = 10

func SetupPipelineRoutes(
	g *echo.Group,
	webhookGroup *echo.Group,
	pipelineService PipelineServicer,
) {
	h := NewPipelineHandler(pipelineService)
	webhookGroup.POST(
		"/pipelines/:pipeline_id/webhook-trigger/:branch",
		h.PostPipelineRunWebhookTrigger,
	)
	pipelinesGroup := g.Group("/pipelines")
	pipelinesGroup.GET("", h.GetPipelines)
	pipelinesGroup.POST("", h.PostPipeline)
	pipelinesGroup.GET("/:pipeline_id", h.GetPipeline)
	pipelinesGroup.PATCH("/:pipeline_id", h.PatchPipeline)
	pipelinesGroup.DELETE("/:pipeline_id", h.DeletePipeline)
	pipelinesGroup.PATCH("/:pipeline_id/schedule", h.PatchPipelineSchedule)
	pipelinesGroup.GET("/:pipeline_id/latest-runs", h.GetLatestPipelineRuns)
	pipelinesGroup.GET("/:pipeline_id/runs", h.GetPipelineRuns)
	pipelinesGroup.POST("/:pipeline_id/runs", h.PostPipelineRun)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id", h.GetPipelineRun)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/stages", h.GetPipelineRunStages)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/output", h.GetPipelineRunOutputSSE)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/status", h.GetPipelineRunStatusSSE)
	pipelinesGroup.GET("/:pipeline_id/runs/:run_id/artifacts", h.GetPipelineRunArtifacts)
	pipelinesGroup.POST("/:pipeline_id/runs/:run_id/cancel", h.PostCancelPipelineRun)
}

type PipelineWriter interface {
	CreatePipeline(
		ctx context.Context,
		agentID int64,
		name, description, repository, scriptPath string,
		parameters *string,
	) (*store.Pipeline, error)
	UpdatePipeline(
		ctx context.Context,
		pipelineID, agentID int64,
		name, description, repository, scriptPath string,
		parameters *string,
	) error
	UpdatePipelineSchedule(ctx context.Context, id int64, schedule, branch *string) error
	DeletePipeline(ctx context.Context, pipelineID int64) error
}

type PipelineReader interface {
	GetPipelineByID(ctx context.Context, pipelineID int64) (*store.Pipeline, error)
	ListPipelines(ctx context.Context) ([]*store.Pipeline, error)
	CollectPipelineRunArtifacts(ctx context.Context, pipelineID, runID int64) (string, error)
}

type PipelineRunWriter interface {
	CreatePipelineRun(ctx context.Context, pipelineID int64, branch string) (*store.Run, error)
	DeletePipelineRun(ctx context.Context, runID int64) error
}

type PipelineRunReader interface {
	GetPipelineRunByID(ctx context.Context, runID int64) (*store.Run, error)
	ListPipelineRuns(ctx context.Context, pipelineID int64) ([]store.Run, error)
	ListLatestPipelineRuns(ctx context.Context, id, limit int64) ([]store.Run, error)
	ListPipelineRunsPaginated(ctx context.Context, id, limit, offset int64) ([]store.Run, error)
	GetPipelineRunCount(ctx context.Context, id int64) (int64, error)
	ListRunStageResults(ctx context.Context, runID int64) ([]store.StageResult, error)
}

type RunQueueServicer interface {
	GetPipelineRunQueue(id int64) (*service.RunQueue, bool)
	EnqueueRun(run *store.Run) error
}

type PipelineServicer interface {
	PipelineWriter
	PipelineReader
	PipelineRunWriter
	PipelineRunReader
	RunQueueServicer
	GetAPIKeyByValue(ctx context.Context, value string) (*store.APIKey, error)
}

type PipelineHandler struct {
	pipelineService PipelineServicer
}

func NewPipelineHandler(pipelineService PipelineServicer) *PipelineHandler {
	return &PipelineHandler{pipelineService: pipelineService}
}

func (h *PipelineHandler) GetPipelines(c echo.Context) error {
	pipelines, err := h.pipelineService.ListPipelines(c.Request().Context())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err,
			http.StatusInternalServerError, "something went wrong listing pipelines",
		)
	}
	return c.JSON(http.StatusOK, pipelines)
}

func (h *PipelineHandler) PostPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.CreatePipeline(
		c.Request().Context(),
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
		pp.Parameters,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return newError(err,
				http.StatusConflict,
				fmt.Sprintf("a pipeline with the name %s already exists", pp.Name),
			)
		}
		return newError(err,
			http.StatusInternalServerError, "unable to create pipeline",
		)
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *PipelineHandler) GetPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong getting pipeline data",
		)
	}

	return c.JSON(http.StatusOK, p)
}

func (h *PipelineHandler) PatchPipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	pp.Name = strings.TrimSpace(pp.Name)
	pp.Description = strings.TrimSpace(pp.Description)
	pp.ScriptPath = strings.TrimSpace(pp.ScriptPath)

	err := h.pipelineService.UpdatePipeline(
		c.Request().Context(),
		pp.PipelineID,
		pp.PipelineAgentID,
		pp.Name,
		pp.Description,
		pp.Repository,
		pp.ScriptPath,
		pp.Parameters,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err,
			http.StatusInternalServerError,
			"something went wrong updating the pipeline",
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) PatchPipelineSchedule(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	if pp.Schedule != nil && pp.ScheduleBranch == nil {
		return newError(nil, http.StatusBadRequest, "schedule requires a branch")
	}

	if err := h.pipelineService.UpdatePipelineSchedule(
		c.Request().Context(), pp.PipelineID, pp.Schedule, pp.ScheduleBranch,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusBadRequest, "invalid pipeline id")
		}
		return newError(
			err, http.StatusInternalServerError, "unable to update pipeline schedule",
		)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) DeletePipeline(c echo.Context) error {
	pp := new(PipelineParams)
	if err := c.Bind(pp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	if pp.PipelineID == 0 {
		return newError(errors.New("pipeline id was zero"),
			http.StatusBadRequest, "invalid pipeline id",
		)
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), pp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to delete pipeline")
	}

	if err := h.pipelineService.DeletePipeline(
		c.Request().Context(), p.PipelineID,
	); err != nil {
		return newError(err, http.StatusInternalServerError, "unable to delete pipeline")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *PipelineHandler) PostPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}
	if rp.Branch == "" {
		rp.Branch = "main"
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), rp.PipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "pipeline not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read pipeline data")
	}

	r, err := h.pipelineService.CreatePipelineRun(c.Request().Context(), p.PipelineID, rp.Branch)
	if err != nil {
		return newError(err, http.StatusInternalServerError, "unable to create pipeline run")
	}

	if err := h.pipelineService.EnqueueRun(r); err != nil {
		return newError(err, http.StatusTooManyRequests, "pipeline run queue is full")
	}

	return c.JSON(http.StatusCreated, r)
}

func (h *PipelineHandler) PostPipelineRunWebhookTrigger(c echo.Context) error {
	apiKeyValue := c.Request().Header.Get(internal.WebhookTriggerKeyHeader)
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pipeline data")
	}
	if rp.Branch == "" {
		rp.Branch = "main"
	}

	if _, err := h.pipelineService.GetAPIKeyByValue(
		c.Request().Context(), apiKeyValue,
	); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid api key")
	}

	p, err := h.pipelineService.GetPipelineByID(c.Request().Context(), rp.PipelineID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "pipeline not found")
	}

	r, err := h.pipelineService.CreatePipelineRun(
		c.Request().Context(), p.PipelineID, rp.Branch,
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "unable to create run")
	}

	if err := h.pipelineService.EnqueueRun(r); err != nil {
		return echo.NewHTTPError(
			http.StatusTooManyRequests, "pipeline run queue is full",
		).WithInternal(err)
	}

	return c.NoContent(http.StatusCreated)
}

func (h *PipelineHandler) GetPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	r, err := h.pipelineService.GetPipelineRunByID(c.Request().Context(), rp.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newError(err, http.StatusNotFound, "run not found")
		}
		return newError(err, http.StatusInternalServerError, "unable to read run data")
	}

	return c.JSON(http.StatusOK, r)
}

func (h *PipelineHandler) GetPipelineRunStages(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	results, err := h.pipelineService.ListRunStageResults(c.Request().Context(), rp.RunID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to list stage results")
	}

	return c.JSON(http.StatusOK, results)
}

func (h *PipelineHandler) GetLatestPipelineRuns(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline data")
	}

	runs, err := h.pipelineService.ListLatestPipelineRuns(
		c.Request().Context(), rp.PipelineID, 3,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusBadRequest, "unable to list pipeline runs")
	}

	return c.JSON(http.StatusOK, runs)
}

func (h *PipelineHandler) GetPipelineRuns(c echo.Context) error {
	lrp := new(ListRunsParams)
	if err := c.Bind(lrp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request data")
	}

	count, err := h.pipelineService.GetPipelineRunCount(c.Request().Context(), lrp.PipelineID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "unable to count pipeline runs")
	}

	maxPages := count / maxRunsPerPage
	if maxPages >= 1 {
		maxPages++
	}

	runs, err := h.pipelineService.ListPipelineRunsPaginated(
		c.Request().Context(),
		lrp.PipelineID,
		maxRunsPerPage,
		(max(lrp.Page, 1)-1)*maxRunsPerPage,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return newError(err, http.StatusInternalServerError, "error listing pipeline runs")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"runs":      runs,
		"page":      max(lrp.Page, 1),
		"max_pages": maxPages,
		"count":     count,
	})
}

func (h *PipelineHandler) GetPipelineRunArtifacts(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	artifactsDir, err := h.pipelineService.CollectPipelineRunArtifacts(
		c.Request().Context(),
		rp.PipelineID,
		rp.RunID,
	)
	if err != nil {
		return newError(err,
			http.StatusInternalServerError, "unable to collect pipeline artifacts",
		)
	}

	archive := path.Join(internal.ArtifactsDir, fmt.Sprintf("%d.zip", rp.RunID))
	if exists, _ := util.PathExists(archive); !exists {
		archive, err = util.ArchiveDirectory(artifactsDir)
		if err != nil {
			return newError(err,
				http.StatusInternalServerError, "unable to archive collected output",
			)
		}
	}

	return c.File(archive)
}

func (h *PipelineHandler) GetPipelineRunOutputSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request ID")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()
	ch := rq.OutputSSEClients.AddClient(id)
	defer rq.OutputSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			// client disconnected
			return nil
		case out := <-ch:
			event := &Event{Data: []byte(out)}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			time.Sleep(1 * time.Second)
		}
	}
}

func (h *PipelineHandler) GetPipelineRunStatusSSE(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid request ID")
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return nil
	}

	id := uuid.NewString()
	ch := rq.StatusSSEClients.AddClient(id)
	defer rq.StatusSSEClients.RemoveClient(id)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case r := <-ch:
			b, err := json.Marshal(r)
			if err != nil {
				log.Println("err marshaling run status:", err)
				continue
			}
			event := &Event{Data: b}
			if err := event.MarshalTo(w); err != nil {
				log.Println("err marshaling event data:", err)
			}
			w.Flush()
		default:
			time.Sleep(3 * time.Second)
		}
	}
}

func (h *PipelineHandler) PostCancelPipelineRun(c echo.Context) error {
	rp := new(RunParams)
	if err := c.Bind(rp); err != nil {
		return newError(err, http.StatusBadRequest, "invalid pipeline or run ID")
	}

	rq, ok := h.pipelineService.GetPipelineRunQueue(rp.PipelineID)
	if !ok {
		return newError(nil, http.StatusNotFound, "pipeline run queue not found")
	}

	rq.CancelRun(rp.RunID)

	return c.NoContent(http.StatusAccepted)
}
