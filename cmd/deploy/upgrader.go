package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fenceline/catsentry/internal/deploy"
)

// Service management timing constants
const (
	// serviceStopGracePeriod is the time to wait after stopping the service
	// to allow systemd to fully terminate the process
	serviceStopGracePeriod = 2 * time.Second
	// serviceStartGracePeriod is the time to wait after starting the service
	// to allow it to initialize and be ready for health checks
	serviceStartGracePeriod = 3 * time.Second
)

// Upgrader handles upgrading catsentry to a new version
type Upgrader struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	BinaryPath    string
	MigrationsDir string
	DryRun        bool
	NoBackup      bool
	NoMigrate     bool

	// Exec, when set, replaces the executor built from the connection
	// fields. Used by tests to script command responses.
	Exec *deploy.Executor
}

func (u *Upgrader) executor() *deploy.Executor {
	if u.Exec != nil {
		return u.Exec
	}
	exec := deploy.NewExecutor(u.Target, u.SSHUser, u.SSHKey, u.IdentityAgent, u.DryRun)
	exec.SetLogger(debugLogger{})
	return exec
}

// Upgrade performs the upgrade
func (u *Upgrader) Upgrade() error {
	exec := u.executor()

	fmt.Println("Starting upgrade of catsentry...")

	// Step 1: Check if service is installed
	if installed, err := u.checkInstalled(exec); err != nil {
		return fmt.Errorf("failed to check installation: %w", err)
	} else if !installed {
		return fmt.Errorf("catsentry is not installed. Use 'install' command first")
	}

	// Step 2: Get current version info
	currentVersion, err := u.getCurrentVersion(exec)
	if err != nil {
		fmt.Printf("Warning: could not determine current version: %v\n", err)
		currentVersion = "unknown"
	}
	fmt.Printf("Current version: %s\n", currentVersion)

	// Step 3: Backup current installation
	if !u.NoBackup {
		if err := u.backupCurrent(exec); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
	} else {
		fmt.Println("Skipping backup (--no-backup flag set)")
	}

	// Step 4: Stop service
	if err := u.stopService(exec); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	// Step 5: Install new binary
	if err := u.installNewBinary(exec); err != nil {
		return fmt.Errorf("failed to install new binary: %w", err)
	}

	// Step 6: Deploy new migration files
	if err := u.deployMigrations(exec); err != nil {
		return fmt.Errorf("failed to deploy migrations: %w", err)
	}

	// Step 7: Run database migrations
	if !u.NoMigrate {
		if err := u.runMigrations(exec); err != nil {
			fmt.Println("\n⚠ Warning: Migration failed!")
			fmt.Println("You may want to rollback using: catsentry-deploy rollback")
			return fmt.Errorf("migration failed: %w", err)
		}
	} else {
		fmt.Println("Skipping migrations (--no-migrate flag set)")
	}

	// Step 8: Start service
	if err := u.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Step 9: Verify service is healthy
	if err := u.verifyHealth(exec); err != nil {
		fmt.Println("\n⚠ Warning: Service health check failed!")
		fmt.Println("You may want to rollback using: catsentry-deploy rollback")
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("\n✓ Upgrade completed successfully!")
	return nil
}

func (u *Upgrader) checkInstalled(exec *deploy.Executor) (bool, error) {
	output, err := exec.Run("test -f /etc/systemd/system/catsentry.service && echo 'exists' || echo 'not found'")
	if err != nil {
		return false, err
	}
	if u.DryRun {
		return true, nil
	}

	return strings.TrimSpace(output) == "exists", nil
}

func (u *Upgrader) getCurrentVersion(exec *deploy.Executor) (string, error) {
	// Try to get version from binary
	output, err := exec.Run("/usr/local/bin/catsentry -version 2>&1 || echo 'unknown'")
	if err != nil {
		return "unknown", err
	}

	version := strings.TrimSpace(output)
	if version == "" || strings.Contains(version, "unknown") {
		// Try to get from file modification time
		timeOutput, err := exec.Run("stat -c %Y /usr/local/bin/catsentry 2>/dev/null || echo '0'")
		if err == nil && strings.TrimSpace(timeOutput) != "0" {
			return fmt.Sprintf("installed-%s", strings.TrimSpace(timeOutput)), nil
		}
		return "unknown", nil
	}

	return version, nil
}

func (u *Upgrader) backupCurrent(exec *deploy.Executor) error {
	fmt.Println("Backing up current installation...")

	timestamp := time.Now().Format("20060102-150405")
	backupDir := fmt.Sprintf("/var/lib/catsentry/backups/%s", timestamp)

	// Create backup directory
	_, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s", backupDir))
	if err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Backup binary
	debugLog("Backing up binary from /usr/local/bin/catsentry to %s/catsentry", backupDir)
	output, err := exec.RunSudo(fmt.Sprintf("cp /usr/local/bin/catsentry %s/catsentry", backupDir))
	if err != nil {
		return fmt.Errorf("failed to backup binary to %s: %w (output: %s)", backupDir, err, output)
	}
	debugLog("Binary backup successful")

	// Backup database
	dbPath := "/var/lib/catsentry/catsentry.db"
	debugLog("Checking for database at %s", dbPath)
	checkOutput, _ := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if strings.TrimSpace(checkOutput) == "exists" {
		if output, err := exec.RunSudo(fmt.Sprintf("cp %s %s/catsentry.db", dbPath, backupDir)); err != nil {
			fmt.Printf("Warning: could not backup database: %v (output: %s)\n", err, output)
		}
	}
	debugLog("Database backup complete (or skipped if not found)")

	// Backup region polygon
	regionPath := "/var/lib/catsentry/polygon_coordinates.json"
	checkOutput, _ = exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", regionPath))
	if strings.TrimSpace(checkOutput) == "exists" {
		if output, err := exec.RunSudo(fmt.Sprintf("cp %s %s/polygon_coordinates.json", regionPath, backupDir)); err != nil {
			fmt.Printf("Warning: could not backup region polygon: %v (output: %s)\n", err, output)
		}
	}

	// Save version info. The backup directory is root-owned, so stage the
	// file where the ssh user can write and move it into place with sudo.
	versionInfo := fmt.Sprintf("Backup created: %s\nBinary: /usr/local/bin/catsentry\n", timestamp)
	tmpVersion := fmt.Sprintf("/tmp/catsentry-version-%s.txt", timestamp)
	if err := exec.WriteFile(tmpVersion, versionInfo); err != nil {
		fmt.Printf("Warning: could not write version info: %v\n", err)
	} else if output, err := exec.RunSudo(fmt.Sprintf("mv %s %s/version.txt", tmpVersion, backupDir)); err != nil {
		fmt.Printf("Warning: could not save version info: %v (output: %s)\n", err, output)
	}

	fmt.Printf("  ✓ Backup saved to: %s\n", backupDir)
	return nil
}

func (u *Upgrader) stopService(exec *deploy.Executor) error {
	fmt.Println("Stopping service...")

	_, err := exec.RunSudo("systemctl stop catsentry.service")
	if err != nil {
		return err
	}

	// Wait for service to stop
	exec.Run(fmt.Sprintf("sleep %d", int(serviceStopGracePeriod.Seconds())))

	fmt.Println("  ✓ Service stopped")
	return nil
}

func (u *Upgrader) installNewBinary(exec *deploy.Executor) error {
	fmt.Printf("Installing new binary from: %s\n", u.BinaryPath)

	// Copy binary to remote host
	tempPath := "/tmp/catsentry-new"
	if err := exec.CopyFile(u.BinaryPath, tempPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	// Move to install path
	_, err := exec.RunSudo(fmt.Sprintf("mv %s /usr/local/bin/catsentry", tempPath))
	if err != nil {
		return fmt.Errorf("failed to move binary: %w", err)
	}

	// Set ownership
	_, err = exec.RunSudo("chown root:root /usr/local/bin/catsentry")
	if err != nil {
		return fmt.Errorf("failed to set ownership: %w", err)
	}

	// Set permissions
	_, err = exec.RunSudo("chmod 0755 /usr/local/bin/catsentry")
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ New binary installed")
	return nil
}

func (u *Upgrader) deployMigrations(exec *deploy.Executor) error {
	if u.MigrationsDir == "" {
		return nil
	}
	if _, err := os.Stat(u.MigrationsDir); os.IsNotExist(err) {
		fmt.Printf("  ⊘ No local migrations directory at %s, using files already on target\n", u.MigrationsDir)
		return nil
	}

	fmt.Printf("Deploying migration files from: %s\n", u.MigrationsDir)

	count, err := deployMigrationFiles(exec, u.MigrationsDir)
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ %d migration files deployed\n", count)
	return nil
}

func (u *Upgrader) runMigrations(exec *deploy.Executor) error {
	fmt.Println("Running database migrations...")

	// Run as the service user so WAL and journal files stay owned by it.
	// The service is stopped at this point, so the database is not locked.
	output, err := exec.Run("sudo -u catsentry /usr/local/bin/catsentry -db /var/lib/catsentry/catsentry.db -migrations /var/lib/catsentry/migrations migrate up")
	if err != nil {
		return fmt.Errorf("migrate up failed: %w (output: %s)", err, output)
	}

	fmt.Println("  ✓ Migrations applied")
	return nil
}

func (u *Upgrader) startService(exec *deploy.Executor) error {
	fmt.Println("Starting service...")

	_, err := exec.RunSudo("systemctl start catsentry.service")
	if err != nil {
		return err
	}

	// Wait for service to start
	exec.Run(fmt.Sprintf("sleep %d", int(serviceStartGracePeriod.Seconds())))

	fmt.Println("  ✓ Service started")
	return nil
}

func (u *Upgrader) verifyHealth(exec *deploy.Executor) error {
	fmt.Println("Verifying service health...")

	if u.DryRun {
		return nil
	}

	// Check if service is active
	output, err := exec.RunSudo("systemctl is-active catsentry.service")
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active")
	}

	fmt.Println("  ✓ Service is running")
	return nil
}
