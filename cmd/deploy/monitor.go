package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fenceline/catsentry/internal/deploy"
)

// Monitor handles status checking and health monitoring
type Monitor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	APIPort       int

	// Exec, when set, replaces the executor built from the connection
	// fields. Used by tests to script command responses.
	Exec *deploy.Executor
}

func (m *Monitor) executor() *deploy.Executor {
	if m.Exec != nil {
		return m.Exec
	}
	exec := deploy.NewExecutor(m.Target, m.SSHUser, m.SSHKey, m.IdentityAgent, false)
	exec.SetLogger(debugLogger{})
	return exec
}

// HealthStatus represents the health check result
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

// Status is a point-in-time snapshot of the deployed service.
type Status struct {
	Target        string
	ServiceState  string
	StartedAt     string
	BinaryVersion string
	DatabaseSize  string
	Region        string
	DiskFree      string
	RecentLogs    string
}

// FormatStatus renders the snapshot for terminal display.
func (s *Status) FormatStatus() string {
	var b strings.Builder

	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	b.WriteString(fmt.Sprintf("📷 Catsentry Status: %s\n", s.Target))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")

	b.WriteString(fmt.Sprintf("Service:  %s\n", s.ServiceState))
	if s.StartedAt != "" {
		b.WriteString(fmt.Sprintf("Started:  %s\n", s.StartedAt))
	}
	if s.BinaryVersion != "" {
		b.WriteString(fmt.Sprintf("Version:  %s\n", s.BinaryVersion))
	}
	if s.DatabaseSize != "" {
		b.WriteString(fmt.Sprintf("Database: %s\n", s.DatabaseSize))
	}
	b.WriteString(fmt.Sprintf("Region:   %s\n", s.Region))
	if s.DiskFree != "" {
		b.WriteString(fmt.Sprintf("Disk:     %s\n", s.DiskFree))
	}

	if s.RecentLogs != "" {
		b.WriteString("\nRecent logs:\n")
		b.WriteString(s.RecentLogs)
		b.WriteString("\n")
	}

	return b.String()
}

// GetStatus collects a snapshot of the deployed service. The context bounds
// the overall collection; individual commands are not interruptible, so
// cancellation takes effect between commands.
func (m *Monitor) GetStatus(ctx context.Context) (*Status, error) {
	exec := m.executor()

	status := &Status{Target: m.Target}
	if status.Target == "" {
		status.Target = "localhost"
	}

	// Service state. is-active exits non-zero for inactive units, so force
	// success to keep the output.
	output, err := exec.RunSudo("systemctl is-active catsentry.service 2>&1 || true")
	if err != nil {
		return nil, fmt.Errorf("failed to get service status: %w", err)
	}
	status.ServiceState = strings.TrimSpace(output)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if output, err := exec.RunSudo("systemctl show catsentry.service --property=ActiveEnterTimestamp --value"); err == nil {
		status.StartedAt = strings.TrimSpace(output)
	}

	if output, err := exec.Run("/usr/local/bin/catsentry -version 2>/dev/null || echo ''"); err == nil {
		status.BinaryVersion = strings.TrimSpace(output)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if output, err := exec.RunSudo("test -f /var/lib/catsentry/catsentry.db && du -h /var/lib/catsentry/catsentry.db | cut -f1 || echo ''"); err == nil {
		status.DatabaseSize = strings.TrimSpace(output)
	}

	status.Region = m.regionSummary(exec)

	if output, err := exec.Run("df -h /var/lib/catsentry 2>/dev/null | tail -1 | awk '{print $4 \" free of \" $2}'"); err == nil {
		status.DiskFree = strings.TrimSpace(output)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if output, err := exec.RunSudo("journalctl -u catsentry.service -n 5 --no-pager 2>/dev/null"); err == nil {
		status.RecentLogs = strings.TrimSpace(output)
	}

	return status, nil
}

// ScanDiskUsage reports the largest entries under the data directory along
// with filesystem and journal usage.
func (m *Monitor) ScanDiskUsage(ctx context.Context) (string, error) {
	exec := m.executor()

	var b strings.Builder

	output, err := exec.RunSudo("du -ah /var/lib/catsentry 2>/dev/null | sort -rh | head -15")
	if err != nil {
		return "", fmt.Errorf("disk scan failed: %w", err)
	}
	b.WriteString("Largest entries in /var/lib/catsentry:\n")
	b.WriteString(output)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if output, err := exec.Run("df -h /var/lib/catsentry"); err == nil {
		b.WriteString("\nFilesystem usage:\n")
		b.WriteString(output)
	}

	if output, err := exec.RunSudo("journalctl --disk-usage 2>/dev/null"); err == nil {
		b.WriteString("\n")
		b.WriteString(output)
	}

	return b.String(), nil
}

// regionSummary describes the persisted detection region, if any.
func (m *Monitor) regionSummary(exec *deploy.Executor) string {
	output, err := exec.RunSudo("cat /var/lib/catsentry/polygon_coordinates.json 2>/dev/null")
	if err != nil || strings.TrimSpace(output) == "" {
		return "not configured"
	}

	var region struct {
		Points [][]float64 `json:"points"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &region); err != nil {
		return "unreadable"
	}
	if len(region.Points) < 3 {
		return fmt.Sprintf("%d points (incomplete)", len(region.Points))
	}
	return fmt.Sprintf("%d point polygon", len(region.Points))
}

// CheckHealth performs comprehensive health check
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	exec := m.executor()

	health := &HealthStatus{
		Healthy: true,
		Details: "",
	}

	var checks []string

	// Check 1: Service is running
	output, err := exec.RunSudo("systemctl is-active catsentry.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		health.Healthy = false
		health.Message = "Service is not running"
		checks = append(checks, "✗ Service: NOT RUNNING")
	} else {
		checks = append(checks, "✓ Service: RUNNING")
	}

	// Check 2: Service has been up for some time (not crash-looping)
	uptimeOutput, err := exec.RunSudo("systemctl show catsentry.service --property=ActiveEnterTimestamp --value")
	if err == nil {
		checks = append(checks, fmt.Sprintf("✓ Started: %s", strings.TrimSpace(uptimeOutput)))
	}

	// Check 3: Check for recent errors in logs
	logsOutput, err := exec.RunSudo("journalctl -u catsentry.service -n 20 --no-pager")
	if err == nil {
		errorCount := strings.Count(strings.ToLower(logsOutput), "error")
		if errorCount > 5 {
			health.Healthy = false
			health.Message = fmt.Sprintf("Too many errors in logs (%d)", errorCount)
			checks = append(checks, fmt.Sprintf("✗ Logs: %d errors found", errorCount))
		} else {
			checks = append(checks, fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))
		}
	}

	// Check 4: HTTP endpoint is responding
	apiHost := m.Target
	if apiHost == "localhost" || apiHost == "" {
		apiHost = "localhost"
	} else {
		// Extract hostname from user@host format
		parts := strings.Split(apiHost, "@")
		if len(parts) > 1 {
			apiHost = parts[1]
		}
	}

	apiPort := m.APIPort
	if apiPort == 0 {
		apiPort = 5000
	}

	apiURL := fmt.Sprintf("http://%s:%d/healthz", apiHost, apiPort)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(apiURL)
	if err != nil {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "HTTP endpoint not responding"
		}
		checks = append(checks, "✗ HTTP: NOT RESPONDING")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == 200 {
			checks = append(checks, "✓ HTTP: RESPONDING")

			// Report the running version if the response carries one
			var healthz struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&healthz); err == nil && healthz.Version != "" {
				checks = append(checks, fmt.Sprintf("  Version: %s", healthz.Version))
			}
		} else {
			health.Healthy = false
			if health.Message == "" {
				health.Message = fmt.Sprintf("HTTP endpoint returned status %d", resp.StatusCode)
			}
			checks = append(checks, fmt.Sprintf("✗ HTTP: Status %d", resp.StatusCode))
		}
	}

	// Check 5: Database file exists
	dbPath := "/var/lib/catsentry/catsentry.db"
	dbCheck, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err == nil && strings.TrimSpace(dbCheck) == "exists" {
		// Get database size
		sizeOutput, err := exec.RunSudo(fmt.Sprintf("du -h %s | cut -f1", dbPath))
		if err == nil {
			checks = append(checks, fmt.Sprintf("✓ Database: %s", strings.TrimSpace(sizeOutput)))
		} else {
			checks = append(checks, "✓ Database: EXISTS")
		}
	} else {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Database file not found"
		}
		checks = append(checks, "✗ Database: MISSING")
	}

	// Check 6: Detection region is configured. Not fatal: the service runs
	// without one, it just never triggers.
	region := m.regionSummary(exec)
	if region == "not configured" {
		checks = append(checks, "⊘ Region: not configured")
	} else {
		checks = append(checks, fmt.Sprintf("✓ Region: %s", region))
	}

	health.Details = strings.Join(checks, "\n")

	if health.Healthy {
		health.Message = "All checks passed"
	}

	return health, nil
}
