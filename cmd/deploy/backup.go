package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fenceline/catsentry/internal/deploy"
)

// Backup pulls the installation's binary, database, region polygon, and
// service file from the target into a local backup directory.
type Backup struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	OutputDir     string

	// Exec, when set, replaces the executor built from the connection
	// fields. Used by tests to script command responses.
	Exec *deploy.Executor
}

func (b *Backup) executor() *deploy.Executor {
	if b.Exec != nil {
		return b.Exec
	}
	exec := deploy.NewExecutor(b.Target, b.SSHUser, b.SSHKey, b.IdentityAgent, false)
	exec.SetLogger(debugLogger{})
	return exec
}

// Execute performs the backup
func (b *Backup) Execute() error {
	exec := b.executor()

	fmt.Println("Starting backup of catsentry...")

	timestamp := time.Now().Format("20060102-150405")
	backupName := fmt.Sprintf("catsentry-backup-%s", timestamp)

	// Step 1: Create local backup directory
	localBackupDir := filepath.Join(b.OutputDir, backupName)
	if err := os.MkdirAll(localBackupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	fmt.Printf("Backup directory: %s\n", localBackupDir)

	// Step 2: Backup binary
	if err := b.backupBinary(exec, localBackupDir); err != nil {
		return fmt.Errorf("failed to backup binary: %w", err)
	}

	// Step 3: Backup database
	if err := b.backupDatabase(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup database: %v\n", err)
	}

	// Step 4: Backup region polygon
	if err := b.backupRegion(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup region polygon: %v\n", err)
	}

	// Step 5: Backup service file
	if err := b.backupServiceFile(exec, localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup service file: %v\n", err)
	}

	// Step 6: Create metadata file
	if err := b.createMetadata(exec, localBackupDir, timestamp); err != nil {
		fmt.Printf("Warning: could not create metadata: %v\n", err)
	}

	fmt.Printf("\n✓ Backup completed successfully!\n")
	fmt.Printf("Backup saved to: %s\n", localBackupDir)

	return nil
}

func (b *Backup) backupBinary(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up binary...")

	if err := exec.PullFile("/usr/local/bin/catsentry", filepath.Join(backupDir, "catsentry")); err != nil {
		return err
	}

	fmt.Println("  ✓ Binary backed up")
	return nil
}

func (b *Backup) backupDatabase(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up database...")

	dbPath := "/var/lib/catsentry/catsentry.db"

	// Check if database exists
	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No database found")
		return nil
	}

	dbDest := filepath.Join(backupDir, "catsentry.db")
	if err := exec.PullFile(dbPath, dbDest); err != nil {
		return err
	}

	if info, err := os.Stat(dbDest); err == nil {
		fmt.Printf("  ✓ Database backed up (%.1f MB)\n", float64(info.Size())/(1024*1024))
	} else {
		fmt.Println("  ✓ Database backed up")
	}

	return nil
}

func (b *Backup) backupRegion(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up region polygon...")

	regionPath := "/var/lib/catsentry/polygon_coordinates.json"

	checkOutput, err := exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", regionPath))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		fmt.Println("  ⊘ No region polygon found")
		return nil
	}

	if err := exec.PullFile(regionPath, filepath.Join(backupDir, "polygon_coordinates.json")); err != nil {
		return err
	}

	fmt.Println("  ✓ Region polygon backed up")
	return nil
}

func (b *Backup) backupServiceFile(exec *deploy.Executor, backupDir string) error {
	fmt.Println("Backing up service file...")

	if err := exec.PullFile("/etc/systemd/system/catsentry.service", filepath.Join(backupDir, "catsentry.service")); err != nil {
		return err
	}

	fmt.Println("  ✓ Service file backed up")
	return nil
}

func (b *Backup) createMetadata(exec *deploy.Executor, backupDir, timestamp string) error {
	fmt.Println("Creating backup metadata...")

	// Get version info if possible
	versionOutput, _ := exec.Run("/usr/local/bin/catsentry -version 2>&1 || echo 'unknown'")

	// Get service status
	statusOutput, _ := exec.RunSudo("systemctl is-active catsentry.service 2>&1 || echo 'unknown'")

	metadata := fmt.Sprintf(`Catsentry Backup
================
Timestamp: %s
Target: %s
Binary Version: %s
Service Status: %s

Files included:
- catsentry (binary)
- catsentry.db (events database)
- polygon_coordinates.json (region polygon)
- catsentry.service (systemd service file)

To restore this backup:
1. Stop the service: sudo systemctl stop catsentry.service
2. Restore binary: sudo cp catsentry /usr/local/bin/catsentry
3. Restore database: sudo cp catsentry.db /var/lib/catsentry/catsentry.db
4. Restore region: sudo cp polygon_coordinates.json /var/lib/catsentry/polygon_coordinates.json
5. Restore service: sudo cp catsentry.service /etc/systemd/system/
6. Fix ownership: sudo chown catsentry:catsentry /var/lib/catsentry/catsentry.db /var/lib/catsentry/polygon_coordinates.json
7. Reload systemd: sudo systemctl daemon-reload
8. Start service: sudo systemctl start catsentry.service
`, timestamp, b.Target, strings.TrimSpace(versionOutput), strings.TrimSpace(statusOutput))

	metadataFile := filepath.Join(backupDir, "README.txt")
	if err := os.WriteFile(metadataFile, []byte(metadata), 0644); err != nil {
		return err
	}

	fmt.Println("  ✓ Metadata created")
	return nil
}
