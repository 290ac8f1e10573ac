package health

import (
	"context"
	"errors"
	"testing"
)

func TestExecChecker_HostCommand(t *testing.T) {
	checker := NewExecChecker([]string{"true"})
	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("expected healthy, got unhealthy: %s", result.Message)
	}
}

func TestExecChecker_ContainerWithoutExecFuncIsUnhealthy(t *testing.T) {
	checker := NewExecChecker([]string{"pg_isready"}).WithContainer("abc123")
	result := checker.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy when ContainerExec is not configured")
	}
}

func TestExecChecker_ContainerExecSuccess(t *testing.T) {
	checker := NewExecChecker([]string{"pg_isready"}).WithContainer("abc123")
	checker.ContainerExec = func(ctx context.Context, containerID string, argv []string) (string, error) {
		if containerID != "abc123" {
			t.Errorf("unexpected container id: %s", containerID)
		}
		return "accepting connections", nil
	}

	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Errorf("expected healthy, got unhealthy: %s", result.Message)
	}
}

func TestExecChecker_ContainerExecFailure(t *testing.T) {
	checker := NewExecChecker([]string{"pg_isready"}).WithContainer("abc123")
	checker.ContainerExec = func(ctx context.Context, containerID string, argv []string) (string, error) {
		return "", errors.New("exit status 1")
	}

	result := checker.Check(context.Background())
	if result.Healthy {
		t.Error("expected unhealthy on exec error")
	}
}
