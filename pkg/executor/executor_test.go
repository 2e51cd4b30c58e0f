package executor

import "testing"

func TestRegistryRejectsDuplicateModuleType(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(SetVariableExecutor{}); err != nil {
		t.Fatalf("unexpected error on first register: %v", err)
	}
	if err := r.Register(SetVariableExecutor{}); err == nil {
		t.Fatalf("expected an error registering a duplicate module type")
	}
}

func TestRegistryGetAndList(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(SetVariableExecutor{})
	r.MustRegister(PrintLogExecutor{})

	if _, ok := r.Get("set_variable"); !ok {
		t.Fatalf("expected set_variable to be registered")
	}
	if _, ok := r.Get("does_not_exist"); ok {
		t.Fatalf("expected no executor for an unregistered module type")
	}
	types := r.ListModuleTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 registered module types, got %d", len(types))
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected MustRegister to panic on a duplicate module type")
		}
	}()
	r := NewRegistry()
	r.MustRegister(GroupExecutor{})
	r.MustRegister(GroupExecutor{})
}

func TestDefaultRegistryHasEveryBuiltinModuleType(t *testing.T) {
	r := DefaultRegistry(nil, nil, 0)
	want := []string{
		"set_variable", "print_log", "group", "conditional",
		"loop_range", "loop_list", "loop_while", "loop_end",
		"subflow_call", "end_subflow", "input_prompt",
		"add_data_value", "commit_row", "export_logs", "export_table",
		"http_request", "transcode_media", "schema_validate", "text_operation",
		"start_file_share", "start_screen_share",
	}
	for _, mt := range want {
		if _, ok := r.Get(mt); !ok {
			t.Fatalf("expected DefaultRegistry to include module type %q", mt)
		}
	}
}
