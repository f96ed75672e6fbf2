package sched

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JobConfig is one entry of the YAML job document, binding a schedule
// and config map to a handler registered in code by the same name.
type JobConfig struct {
	Schedule    string         `yaml:"schedule"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
}

// JobsFile is the on-disk shape of the job configuration document.
type JobsFile struct {
	Jobs map[string]JobConfig `yaml:"jobs"`
}

// LoadJobsFile reads and parses the YAML job document.
func LoadJobsFile(path string) (JobsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobsFile{}, fmt.Errorf("read jobs file: %w", err)
	}

	var file JobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return JobsFile{}, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	for name, job := range file.Jobs {
		if job.Schedule == "" {
			return JobsFile{}, fmt.Errorf("jobs file %s: job %q has no schedule", path, name)
		}
		if _, err := ParseSchedule(job.Schedule); err != nil {
			return JobsFile{}, fmt.Errorf("jobs file %s: job %q: %w", path, name, err)
		}
	}
	return file, nil
}
