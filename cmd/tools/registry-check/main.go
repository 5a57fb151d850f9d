// cmd/tools/registry-check/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"notification-workers/internal/common/config"
	"notification-workers/internal/common/errors"
	"notification-workers/internal/common/validation"
	"notification-workers/pkg/registry"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)

	registryPath := validateCmd.String("path", "pkg/registry/activities.json", "Path to registry file")
	configPath := validateCmd.String("config", "configs/config.yaml", "Worker manager configuration")

	updatePath := updateCmd.String("path", "pkg/registry/activities.json", "Path to registry file")
	taskType := updateCmd.String("taskType", "", "Task type of the activity to update")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*registryPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		cfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		problems := check(reg, cfg)
		for _, p := range problems {
			fmt.Println("  -", p)
		}
		if len(problems) > 0 {
			fmt.Printf("Registry validation failed: %d problem(s)\n", len(problems))
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *taskType == "" || *field == "" || *value == "" {
			fmt.Println("Error: taskType, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateActivity(*updatePath, *taskType, *field, *value); err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated %s, field %s to %s\n", *taskType, *field, *value)

	default:
		help(os.Stdout)
	}
}

var knownCodes = map[string]bool{
	string(errors.ErrCodeValidation):     true,
	string(errors.ErrCodeNotFound):       true,
	string(errors.ErrCodeInvalidState):   true,
	string(errors.ErrCodeDeliveryFailed): true,
	string(errors.ErrCodeRenderError):    true,
	string(errors.ErrCodeDatabase):       true,
	string(errors.ErrCodeInternal):       true,
}

// check reports every inconsistency between the registry, its input schemas
// and the worker configuration.
func check(reg *registry.ActivityRegistry, cfg *config.Config) []string {
	var problems []string

	if len(reg.Activities) == 0 {
		return []string{"registry contains no activities"}
	}
	if _, err := validation.NewValidator(reg); err != nil {
		problems = append(problems, err.Error())
	}

	ids := make(map[string]bool)
	for _, a := range reg.Activities {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("activity %s missing required field: id", a.TaskType))
		} else if ids[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate activity id: %s", a.ID))
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("activity %s missing required field: displayName", a.ID))
		}
		if _, err := time.ParseDuration(a.Timeout); err != nil {
			problems = append(problems, fmt.Sprintf("activity %s has invalid timeout %q", a.ID, a.Timeout))
		}
		for _, code := range a.ErrorCodes {
			if !knownCodes[code] {
				problems = append(problems, fmt.Sprintf("activity %s declares unknown error code %s", a.ID, code))
			}
		}
		if _, ok := cfg.Workers[a.TaskType]; !ok {
			problems = append(problems, fmt.Sprintf("no worker configured for %s", a.TaskType))
		}
	}

	for taskType := range cfg.Workers {
		if _, ok := reg.Find(taskType); !ok {
			problems = append(problems, fmt.Sprintf("worker %s has no registry activity", taskType))
		}
	}
	return problems
}

func updateActivity(path, taskType, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if err := applyUpdate(reg, taskType, field, value); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func applyUpdate(reg *registry.ActivityRegistry, taskType, field, value string) error {
	for i := range reg.Activities {
		a := &reg.Activities[i]
		if a.TaskType != taskType {
			continue
		}
		switch field {
		case "status":
			a.ImplementationStatus = value
		case "version":
			a.Version = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			a.Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			a.Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		return nil
	}
	return fmt.Errorf("activity with task type %s not found", taskType)
}

func help(w io.Writer) {
	fmt.Fprint(w, `
Usage: registry-check <command> [flags]

Commands:
  validate  Check the registry, its input schemas and the worker configuration
  update    Update a field of an activity

Examples:
  registry-check validate -path pkg/registry/activities.json -config configs/config.yaml
  registry-check update -taskType notification-send-bulk -field timeout -value 180s
`)
}
