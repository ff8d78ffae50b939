//go:build cgo

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(dir, "registry.db"))
	t.Setenv("SYNC_QUEUE_PATH", filepath.Join(dir, "queue"))
	t.Setenv("REGISTRY_BACKEND_URL", "")
	t.Setenv("LOG_LEVEL", "disabled")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("registryctl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRegistryctl_Workflow(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "", "migrate", "--seed-psgc", "../../psgc/testdata/areas.json")
	if !strings.Contains(out, "areas seeded") {
		t.Fatalf("migrate output = %q", out)
	}

	out = mustRun(t, `{"barangay_code":"137404001","street_name":"Mabini"}`, "household", "create")
	if !strings.Contains(out, `"code": "137404001-0001"`) {
		t.Fatalf("household create output = %s", out)
	}

	resident := `{
		"first_name": "Jose",
		"last_name": "Dela Cruz",
		"birthdate": "1985-07-01T00:00:00Z",
		"sex": "male",
		"household_code": "137404001-0001",
		"city_municipality_code": "137404000",
		"barangay_code": "137404001"
	}`
	mustRun(t, resident, "resident", "create")

	out = mustRun(t, "", "resident", "search", "--jurisdiction", "137404000", "--name", "cruz")
	if !strings.Contains(out, `"first_name": "Jose"`) {
		t.Fatalf("search output = %s", out)
	}

	out = mustRun(t, "", "household", "members", "137404001-0001")
	if !strings.Contains(out, `"last_name": "Dela Cruz"`) {
		t.Fatalf("members output = %s", out)
	}

	out = mustRun(t, "", "household", "get", "137404001-0001")
	if !strings.Contains(out, `"street_name": "Mabini"`) {
		t.Fatalf("household get output = %s", out)
	}

	out = mustRun(t, "", "sync", "status")
	if !strings.Contains(out, `"pending": 0`) {
		t.Fatalf("sync status output = %s", out)
	}

	out = mustRun(t, "", "sync", "stuck")
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("sync stuck output = %q", out)
	}
}

func TestRegistryctl_Errors(t *testing.T) {
	setupEnv(t)
	mustRun(t, "", "migrate")

	if _, err := run(t, "", "resident", "get", "not-a-uuid"); err == nil || !strings.Contains(err.Error(), "id") {
		t.Fatalf("resident get error = %v", err)
	}
	if _, err := run(t, `{"first_name":""}`, "resident", "create"); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := run(t, "", "sync", "drain"); err == nil || !strings.Contains(err.Error(), "no backend") {
		t.Fatalf("sync drain error = %v", err)
	}
	if _, err := run(t, "", "sync", "retry", "missing"); err == nil {
		t.Fatal("expected not found error")
	}
}
