package main

import (
	"fmt"
	"strings"

	"github.com/fenceline/catsentry/internal/deploy"
)

// Rollback handles rolling back to a previous version
type Rollback struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool

	// Exec, when set, replaces the executor built from the connection
	// fields. Used by tests to script command responses.
	Exec *deploy.Executor
}

func (r *Rollback) executor() *deploy.Executor {
	if r.Exec != nil {
		return r.Exec
	}
	exec := deploy.NewExecutor(r.Target, r.SSHUser, r.SSHKey, r.IdentityAgent, r.DryRun)
	exec.SetLogger(debugLogger{})
	return exec
}

// Execute performs the rollback
func (r *Rollback) Execute() error {
	exec := r.executor()

	fmt.Println("Starting rollback to previous version...")

	// Step 1: Find most recent backup
	backupDir, err := r.findLatestBackup(exec)
	if err != nil {
		return fmt.Errorf("failed to find backup: %w", err)
	}

	fmt.Printf("Found backup: %s\n", backupDir)

	// Step 2: Confirm rollback
	if !r.DryRun {
		fmt.Print("Are you sure you want to rollback? This will stop the service and restore the backup. [y/N]: ")
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	// Step 3: Stop service
	if err := r.stopService(exec); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	// Step 4: Restore binary
	if err := r.restoreBinary(exec, backupDir); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	// Step 5: Optionally restore database
	if err := r.restoreDatabase(exec, backupDir); err != nil {
		fmt.Printf("Warning: could not restore database: %v\n", err)
	}

	// Step 6: Restore region polygon if backed up
	if err := r.restoreRegion(exec, backupDir); err != nil {
		fmt.Printf("Warning: could not restore region polygon: %v\n", err)
	}

	// Step 7: Start service
	if err := r.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Step 8: Verify service is healthy
	if err := r.verifyHealth(exec); err != nil {
		return fmt.Errorf("health check failed after rollback: %w", err)
	}

	fmt.Println("\n✓ Rollback completed successfully!")
	return nil
}

func (r *Rollback) findLatestBackup(exec *deploy.Executor) (string, error) {
	fmt.Println("Looking for backups...")

	if r.DryRun {
		return "/var/lib/catsentry/backups/<latest>", nil
	}

	// List backup directories sorted by name (which includes timestamp)
	output, err := exec.RunSudo("ls -1t /var/lib/catsentry/backups/ 2>/dev/null | head -1")
	if err != nil {
		return "", fmt.Errorf("no backups found")
	}

	backupName := strings.TrimSpace(output)
	if backupName == "" {
		return "", fmt.Errorf("no backups found in /var/lib/catsentry/backups/")
	}

	backupDir := fmt.Sprintf("/var/lib/catsentry/backups/%s", backupName)

	// Verify backup contains binary
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s/catsentry && echo 'exists' || echo 'missing'", backupDir))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		return "", fmt.Errorf("backup directory exists but binary not found: %s", backupDir)
	}

	return backupDir, nil
}

func (r *Rollback) stopService(exec *deploy.Executor) error {
	fmt.Println("Stopping service...")

	_, err := exec.RunSudo("systemctl stop catsentry.service")
	if err != nil {
		return err
	}

	exec.Run("sleep 2")
	fmt.Println("  ✓ Service stopped")
	return nil
}

func (r *Rollback) restoreBinary(exec *deploy.Executor, backupDir string) error {
	fmt.Printf("Restoring binary from: %s\n", backupDir)

	binaryPath := fmt.Sprintf("%s/catsentry", backupDir)

	_, err := exec.RunSudo(fmt.Sprintf("cp %s /usr/local/bin/catsentry", binaryPath))
	if err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	_, err = exec.RunSudo("chown root:root /usr/local/bin/catsentry && chmod 0755 /usr/local/bin/catsentry")
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary restored")
	return nil
}

func (r *Rollback) restoreDatabase(exec *deploy.Executor, backupDir string) error {
	dbBackup := fmt.Sprintf("%s/catsentry.db", backupDir)

	// Check if database backup exists
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbBackup))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No database backup found, keeping current database")
		return nil
	}

	fmt.Print("Database backup found. Restore it? This will replace current event data. [y/N]: ")
	var confirm string
	if !r.DryRun {
		fmt.Scanln(&confirm)
	} else {
		confirm = "n"
	}

	if strings.ToLower(confirm) != "y" {
		fmt.Println("  ⊘ Keeping current database")
		return nil
	}

	fmt.Println("  Restoring database...")

	_, err = exec.RunSudo(fmt.Sprintf("cp %s /var/lib/catsentry/catsentry.db", dbBackup))
	if err != nil {
		return err
	}

	_, err = exec.RunSudo("chown catsentry:catsentry /var/lib/catsentry/catsentry.db")
	if err != nil {
		return err
	}

	fmt.Println("  ✓ Database restored")
	return nil
}

func (r *Rollback) restoreRegion(exec *deploy.Executor, backupDir string) error {
	regionBackup := fmt.Sprintf("%s/polygon_coordinates.json", backupDir)

	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", regionBackup))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No region backup found, keeping current region")
		return nil
	}

	_, err = exec.RunSudo(fmt.Sprintf("cp %s /var/lib/catsentry/polygon_coordinates.json", regionBackup))
	if err != nil {
		return err
	}

	_, err = exec.RunSudo("chown catsentry:catsentry /var/lib/catsentry/polygon_coordinates.json")
	if err != nil {
		return err
	}

	fmt.Println("  ✓ Region polygon restored")
	return nil
}

func (r *Rollback) startService(exec *deploy.Executor) error {
	fmt.Println("Starting service...")

	_, err := exec.RunSudo("systemctl start catsentry.service")
	if err != nil {
		return err
	}

	exec.Run("sleep 3")
	fmt.Println("  ✓ Service started")
	return nil
}

func (r *Rollback) verifyHealth(exec *deploy.Executor) error {
	fmt.Println("Verifying service health...")

	if r.DryRun {
		return nil
	}

	output, err := exec.RunSudo("systemctl is-active catsentry.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active")
	}

	fmt.Println("  ✓ Service is running")
	return nil
}
