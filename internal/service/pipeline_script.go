package service

import (
	"fmt"
	"time"

	"github.com/imshubhamkaushik/deploypipe/internal/runner"
)

type StepCredential struct {
	ID  string `yaml:"id"`
	Env string `yaml:"env"`
}

type Step struct {
	Step           string            `yaml:"step"`
	Command        []string          `yaml:"command"`
	Env            map[string]string `yaml:"env"`
	OnFailure      []string          `yaml:"on_failure"`
	Credential     *StepCredential   `yaml:"credential"`
	TimeoutSeconds int64             `yaml:"timeout_seconds"`
}

type Gate struct {
	TimeoutSeconds int64 `yaml:"timeout_seconds"`
	PollSeconds    int64 `yaml:"poll_seconds"`
}

type Stage struct {
	Stage     string  `yaml:"stage"`
	Steps     []Step  `yaml:"steps"`
	Parallel  []Stage `yaml:"parallel"`
	Gate      *Gate   `yaml:"gate"`
	Artifacts string  `yaml:"artifacts"`
}

type PipelineScript struct {
	Stages    []Stage `yaml:"stages"`
	Artifacts string  `yaml:"artifacts"`
}

// ToStages lowers the YAML script into the executor's stage list.
// Sequential steps become consecutive stages; a parallel block becomes
// one container stage whose siblings run concurrently.
func (ps *PipelineScript) ToStages() ([]runner.Stage, error) {
	stages := make([]runner.Stage, 0, len(ps.Stages))
	for i := range ps.Stages {
		s := &ps.Stages[i]
		switch {
		case s.Gate != nil:
			if len(s.Steps) > 0 || len(s.Parallel) > 0 {
				return nil, fmt.Errorf("stage '%s': a gate stage has no steps", s.Stage)
			}
			stages = append(stages, runner.Stage{
				Name: s.Stage,
				Gate: &runner.GateSpec{
					Timeout:      time.Duration(s.Gate.TimeoutSeconds) * time.Second,
					PollInterval: time.Duration(s.Gate.PollSeconds) * time.Second,
				},
			})
		case len(s.Parallel) > 0:
			if len(s.Steps) > 0 {
				return nil, fmt.Errorf("stage '%s': a parallel stage has no steps of its own", s.Stage)
			}
			container := runner.Stage{Name: s.Stage}
			for j := range s.Parallel {
				sib := &s.Parallel[j]
				if len(sib.Parallel) > 0 {
					return nil, fmt.Errorf("stage '%s': nested parallel stages are not supported", sib.Stage)
				}
				if len(sib.Steps) != 1 {
					return nil, fmt.Errorf("stage '%s': a parallel sibling runs exactly one step", sib.Stage)
				}
				container.Parallel = append(
					container.Parallel,
					stepToStage(sib.Stage, &sib.Steps[0]),
				)
			}
			stages = append(stages, container)
		default:
			for j := range s.Steps {
				step := &s.Steps[j]
				name := s.Stage
				if step.Step != "" {
					name = fmt.Sprintf("%s: %s", s.Stage, step.Step)
				}
				stages = append(stages, stepToStage(name, step))
			}
		}
	}
	if err := runner.ValidateStages(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

func stepToStage(name string, step *Step) runner.Stage {
	rs := runner.Stage{
		Name:      name,
		Command:   step.Command,
		Env:       step.Env,
		OnFailure: step.OnFailure,
		Timeout:   time.Duration(step.TimeoutSeconds) * time.Second,
	}
	if step.Credential != nil {
		rs.Credential = &runner.CredentialRef{
			ID:  step.Credential.ID,
			Env: step.Credential.Env,
		}
	}
	return rs
}

// ArtifactStages lists stage name / artifact path pairs declared in
// the script, in declaration order.
func (ps *PipelineScript) ArtifactStages() [][2]string {
	out := make([][2]string, 0)
	for _, s := range ps.Stages {
		if s.Artifacts != "" {
			out = append(out, [2]string{s.Stage, s.Artifacts})
		}
	}
	return out
}
