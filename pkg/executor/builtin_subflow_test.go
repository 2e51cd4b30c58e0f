package executor

import (
	"context"
	"testing"
)

func TestSubflowCallExecutorPrefersNameOverGroupID(t *testing.T) {
	e := SubflowCallExecutor{}
	res, err := e.Execute(context.Background(), map[string]interface{}{
		"name":     "validate-order",
		"group_id": "grp-1",
	}, newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := res.Data.(map[string]interface{})
	if data["target"] != "validate-order" {
		t.Fatalf("expected name to take precedence over group_id, got %v", data["target"])
	}
}

func TestSubflowCallExecutorFallsBackToGroupID(t *testing.T) {
	e := SubflowCallExecutor{}
	res, err := e.Execute(context.Background(), map[string]interface{}{"group_id": "grp-1"}, newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := res.Data.(map[string]interface{})
	if data["target"] != "grp-1" {
		t.Fatalf("expected group_id fallback, got %v", data["target"])
	}
}

func TestSubflowCallExecutorValidateRequiresNameOrGroupID(t *testing.T) {
	e := SubflowCallExecutor{}
	if err := e.Validate(map[string]interface{}{}); err == nil {
		t.Fatalf("expected Validate to require name or group_id")
	}
}

func TestEndSubflowExecutorAlwaysSucceeds(t *testing.T) {
	e := EndSubflowExecutor{}
	res, err := e.Execute(context.Background(), nil, newTestContext())
	if err != nil || !res.Success {
		t.Fatalf("expected end_subflow to always succeed, got %+v err=%v", res, err)
	}
}
