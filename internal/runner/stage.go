package runner

import (
	"fmt"
	"time"
)

// CredentialRef names a broker-managed secret and the environment
// variable it is exposed through for the duration of a single stage.
type CredentialRef struct {
	ID  string
	Env string
}

type GateSpec struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Stage is a single unit of pipeline work. A stage either runs a
// command, blocks on a quality gate, or acts as a container for
// parallel sibling stages. A container stage has no command of its own.
type Stage struct {
	Name       string
	Command    []string
	Env        map[string]string
	OnFailure  []string
	Parallel   []Stage
	Gate       *GateSpec
	Credential *CredentialRef
	Timeout    time.Duration
}

func (s *Stage) IsContainer() bool {
	return len(s.Parallel) > 0
}

func ValidateStages(stages []Stage) error {
	for i := range stages {
		if err := validateStage(&stages[i], false); err != nil {
			return err
		}
	}
	return nil
}

func validateStage(s *Stage, nested bool) error {
	if s.Name == "" {
		return fmt.Errorf("stage without a name")
	}
	if s.IsContainer() {
		if nested {
			return fmt.Errorf("stage '%s': nested parallel groups are not supported", s.Name)
		}
		if len(s.Command) > 0 || s.Gate != nil {
			return fmt.Errorf("stage '%s': a parallel container has no command or gate of its own", s.Name)
		}
		for i := range s.Parallel {
			if err := validateStage(&s.Parallel[i], true); err != nil {
				return err
			}
		}
		return nil
	}
	if s.Gate != nil {
		if len(s.Command) > 0 {
			return fmt.Errorf("stage '%s': gate stages do not run a command", s.Name)
		}
		return nil
	}
	if len(s.Command) == 0 {
		return fmt.Errorf("stage '%s': no command", s.Name)
	}
	return nil
}
