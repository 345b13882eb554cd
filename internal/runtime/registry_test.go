package runtime_test

import (
	"strings"
	"testing"

	"github.com/Paintersrp/runcap/internal/runtime"
	_ "github.com/Paintersrp/runcap/internal/runtime/docker"
	_ "github.com/Paintersrp/runcap/internal/runtime/process"
)

func TestNewRegistryContainsBuiltInRuntimes(t *testing.T) {
	reg := runtime.NewRegistry()

	for _, key := range []string{"docker", "process"} {
		if _, ok := reg[key]; !ok {
			t.Fatalf("expected registry to contain %q runtime", key)
		}
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg := runtime.NewRegistry()
	if _, err := reg.Lookup("process"); err != nil {
		t.Fatalf("lookup process: %v", err)
	}
	_, err := reg.Lookup("lxc")
	if err == nil {
		t.Fatal("expected error for unknown runtime")
	}
	if !strings.Contains(err.Error(), "docker, process") {
		t.Fatalf("error should list available runtimes: %v", err)
	}
}

func TestRegistryCloneIsIndependent(t *testing.T) {
	reg := runtime.NewRegistry()
	dup := reg.Clone()
	delete(dup, "docker")
	if _, ok := reg["docker"]; !ok {
		t.Fatal("clone mutation leaked into original registry")
	}
}

func TestNamesListsRegisteredBackends(t *testing.T) {
	names := strings.Join(runtime.Names(), ",")
	if !strings.Contains(names, "docker") || !strings.Contains(names, "process") {
		t.Fatalf("unexpected registered names %v", names)
	}

	reg := runtime.NewRegistry()
	reg["docker"] = nil
	if got := reg.Names(); len(got) != 1 || got[0] != "process" {
		t.Fatalf("expected nil entries to be skipped, got %v", got)
	}
}

func TestRegisterReplacesExistingFactory(t *testing.T) {
	calls := 0
	runtime.Register("registry-test", func() runtime.Runtime {
		calls++
		return nil
	})
	runtime.Register("registry-test", func() runtime.Runtime {
		calls += 10
		return nil
	})
	_ = runtime.NewRegistry()
	if calls != 10 {
		t.Fatalf("expected only the latest factory to run, calls=%d", calls)
	}
}
