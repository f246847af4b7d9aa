package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/fenceline/catsentry/internal/deploy"
)

// localMockExec builds a localhost-target executor backed by a mock builder.
// Local commands run as shell invocations, so respond receives the full
// command line including any sudo prefix.
func localMockExec(respond func(cmd string) *deploy.MockCommandExecutor) (*deploy.Executor, *deploy.MockCommandBuilder) {
	exec := deploy.NewExecutor("127.0.0.1", "", "", "", false)
	mock := deploy.NewMockCommandBuilder()
	mock.Respond = func(name string, args []string) *deploy.MockCommandExecutor {
		if len(args) < 2 || respond == nil {
			return nil
		}
		return respond(args[1])
	}
	exec.SetBuilder(mock)
	return exec, mock
}

// healthzServer runs a stub daemon API and returns a monitor wired to it.
func healthzServer(t *testing.T, handler http.HandlerFunc, respond func(cmd string) *deploy.MockCommandExecutor) *Monitor {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("Failed to parse test server port: %v", err)
	}

	exec, _ := localMockExec(respond)
	return &Monitor{
		Target:  u.Hostname(),
		APIPort: port,
		Exec:    exec,
	}
}

func healthyCommandResponses(cmd string) *deploy.MockCommandExecutor {
	switch {
	case strings.Contains(cmd, "systemctl is-active"):
		return &deploy.MockCommandExecutor{Output: []byte("active\n")}
	case strings.Contains(cmd, "ActiveEnterTimestamp"):
		return &deploy.MockCommandExecutor{Output: []byte("Sat 2026-08-22 10:00:00 PDT\n")}
	case strings.Contains(cmd, "journalctl -u catsentry.service -n 20"):
		return &deploy.MockCommandExecutor{Output: []byte("Aug 22 10:00:01 porchpi catsentry[412]: event stored\n")}
	case strings.Contains(cmd, "test -f /var/lib/catsentry/catsentry.db"):
		return &deploy.MockCommandExecutor{Output: []byte("exists\n")}
	case strings.Contains(cmd, "du -h /var/lib/catsentry/catsentry.db"):
		return &deploy.MockCommandExecutor{Output: []byte("2.4M\n")}
	case strings.Contains(cmd, "cat /var/lib/catsentry/polygon_coordinates.json"):
		return &deploy.MockCommandExecutor{Output: []byte(`{"points":[[120,80],[520,80],[520,400],[120,400]]}`)}
	}
	return nil
}

func TestMonitor_regionSummary(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   string
	}{
		{"missing file", "", errors.New("exit status 1"), "not configured"},
		{"empty file", "  \n", nil, "not configured"},
		{"corrupt json", "not json at all", nil, "unreadable"},
		{"too few points", `{"points":[[10,20],[30,40]]}`, nil, "2 points (incomplete)"},
		{"complete polygon", `{"points":[[0,0],[640,0],[640,480],[0,480]]}`, nil, "4 point polygon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
				if strings.Contains(cmd, "cat /var/lib/catsentry/polygon_coordinates.json") {
					return &deploy.MockCommandExecutor{Output: []byte(tt.output), Err: tt.err}
				}
				return nil
			})

			m := &Monitor{Target: "127.0.0.1", Exec: exec}
			if got := m.regionSummary(exec); got != tt.want {
				t.Errorf("regionSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonitor_GetStatus(t *testing.T) {
	exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		switch {
		case strings.Contains(cmd, "systemctl is-active"):
			return &deploy.MockCommandExecutor{Output: []byte("active\n")}
		case strings.Contains(cmd, "ActiveEnterTimestamp"):
			return &deploy.MockCommandExecutor{Output: []byte("Sat 2026-08-22 10:00:00 PDT\n")}
		case strings.Contains(cmd, "-version"):
			return &deploy.MockCommandExecutor{Output: []byte("catsentry 0.2.0\n")}
		case strings.Contains(cmd, "du -h /var/lib/catsentry/catsentry.db"):
			return &deploy.MockCommandExecutor{Output: []byte("2.4M\n")}
		case strings.Contains(cmd, "cat /var/lib/catsentry/polygon_coordinates.json"):
			return &deploy.MockCommandExecutor{Output: []byte(`{"points":[[0,0],[640,0],[640,480],[0,480]]}`)}
		case strings.Contains(cmd, "df -h /var/lib/catsentry"):
			return &deploy.MockCommandExecutor{Output: []byte("12G free of 29G\n")}
		case strings.Contains(cmd, "journalctl -u catsentry.service -n 5"):
			return &deploy.MockCommandExecutor{Output: []byte("Aug 22 10:00:01 porchpi catsentry[412]: event stored\n")}
		}
		return nil
	})

	m := &Monitor{Target: "127.0.0.1", Exec: exec}
	status, err := m.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}

	if status.ServiceState != "active" {
		t.Errorf("ServiceState = %q, want active", status.ServiceState)
	}
	if status.StartedAt != "Sat 2026-08-22 10:00:00 PDT" {
		t.Errorf("StartedAt = %q", status.StartedAt)
	}
	if status.BinaryVersion != "catsentry 0.2.0" {
		t.Errorf("BinaryVersion = %q", status.BinaryVersion)
	}
	if status.DatabaseSize != "2.4M" {
		t.Errorf("DatabaseSize = %q", status.DatabaseSize)
	}
	if status.Region != "4 point polygon" {
		t.Errorf("Region = %q, want 4 point polygon", status.Region)
	}
	if status.DiskFree != "12G free of 29G" {
		t.Errorf("DiskFree = %q", status.DiskFree)
	}
	if !strings.Contains(status.RecentLogs, "event stored") {
		t.Errorf("RecentLogs = %q", status.RecentLogs)
	}

	formatted := status.FormatStatus()
	for _, want := range []string{
		"Catsentry Status: 127.0.0.1",
		"Service:  active",
		"Version:  catsentry 0.2.0",
		"Region:   4 point polygon",
		"Recent logs:",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("FormatStatus() missing %q:\n%s", want, formatted)
		}
	}
}

func TestMonitor_GetStatus_CancelledContext(t *testing.T) {
	exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		return &deploy.MockCommandExecutor{Output: []byte("active\n")}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &Monitor{Target: "127.0.0.1", Exec: exec}
	if _, err := m.GetStatus(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("GetStatus() with cancelled context error = %v, want context.Canceled", err)
	}
}

func TestStatus_FormatStatus_OmitsEmptyFields(t *testing.T) {
	status := &Status{
		Target:       "porchpi",
		ServiceState: "inactive",
		Region:       "not configured",
	}

	formatted := status.FormatStatus()
	if !strings.Contains(formatted, "Service:  inactive") {
		t.Errorf("FormatStatus() missing service state:\n%s", formatted)
	}
	if !strings.Contains(formatted, "Region:   not configured") {
		t.Errorf("FormatStatus() missing region:\n%s", formatted)
	}
	for _, absent := range []string{"Started:", "Version:", "Database:", "Disk:", "Recent logs:"} {
		if strings.Contains(formatted, absent) {
			t.Errorf("FormatStatus() should omit %q when unset:\n%s", absent, formatted)
		}
	}
}

func TestMonitor_ScanDiskUsage(t *testing.T) {
	exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		switch {
		case strings.Contains(cmd, "du -ah /var/lib/catsentry"):
			return &deploy.MockCommandExecutor{Output: []byte("2.4M\t/var/lib/catsentry/catsentry.db\n")}
		case strings.Contains(cmd, "df -h /var/lib/catsentry"):
			return &deploy.MockCommandExecutor{Output: []byte("/dev/root  29G  16G  12G  58% /\n")}
		case strings.Contains(cmd, "journalctl --disk-usage"):
			return &deploy.MockCommandExecutor{Output: []byte("Archived and active journals take up 56.0M in the file system.\n")}
		}
		return nil
	})

	m := &Monitor{Target: "127.0.0.1", Exec: exec}
	output, err := m.ScanDiskUsage(context.Background())
	if err != nil {
		t.Fatalf("ScanDiskUsage() error = %v", err)
	}

	for _, want := range []string{
		"Largest entries in /var/lib/catsentry",
		"catsentry.db",
		"Filesystem usage:",
		"journals take up 56.0M",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("ScanDiskUsage() missing %q:\n%s", want, output)
		}
	}
}

func TestMonitor_CheckHealth_Healthy(t *testing.T) {
	m := healthzServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status": "ok", "version": %q}`, "catsentry 0.2.0")
	}, healthyCommandResponses)

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}

	if !health.Healthy {
		t.Fatalf("CheckHealth() unhealthy: %s\n%s", health.Message, health.Details)
	}
	if health.Message != "All checks passed" {
		t.Errorf("Message = %q", health.Message)
	}

	for _, want := range []string{
		"✓ Service: RUNNING",
		"✓ HTTP: RESPONDING",
		"Version: catsentry 0.2.0",
		"✓ Database: 2.4M",
		"✓ Region: 4 point polygon",
	} {
		if !strings.Contains(health.Details, want) {
			t.Errorf("Details missing %q:\n%s", want, health.Details)
		}
	}
}

func TestMonitor_CheckHealth_ServiceDown(t *testing.T) {
	exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		if strings.Contains(cmd, "systemctl is-active") {
			return &deploy.MockCommandExecutor{Output: []byte("inactive\n"), Err: errors.New("exit status 3")}
		}
		return nil
	})

	// Closed port so the HTTP probe fails fast
	ts := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(ts.URL)
	port, _ := strconv.Atoi(u.Port())
	ts.Close()

	m := &Monitor{Target: "127.0.0.1", APIPort: port, Exec: exec}

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}

	if health.Healthy {
		t.Fatal("CheckHealth() should report unhealthy when service is down")
	}
	if health.Message != "Service is not running" {
		t.Errorf("Message = %q, want Service is not running", health.Message)
	}
	if !strings.Contains(health.Details, "✗ Service: NOT RUNNING") {
		t.Errorf("Details missing service failure:\n%s", health.Details)
	}
	if !strings.Contains(health.Details, "✗ HTTP: NOT RESPONDING") {
		t.Errorf("Details missing HTTP failure:\n%s", health.Details)
	}
}

func TestMonitor_CheckHealth_TooManyLogErrors(t *testing.T) {
	logs := strings.Repeat("Aug 22 10:00:01 porchpi catsentry[412]: ERROR capture stalled\n", 6)

	m := healthzServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ok"}`)
	}, func(cmd string) *deploy.MockCommandExecutor {
		if strings.Contains(cmd, "journalctl -u catsentry.service -n 20") {
			return &deploy.MockCommandExecutor{Output: []byte(logs)}
		}
		return healthyCommandResponses(cmd)
	})

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}

	if health.Healthy {
		t.Fatal("CheckHealth() should report unhealthy with error-heavy logs")
	}
	if !strings.Contains(health.Message, "Too many errors") {
		t.Errorf("Message = %q, want too many errors", health.Message)
	}
}
