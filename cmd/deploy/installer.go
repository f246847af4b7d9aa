package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fenceline/catsentry/internal/deploy"
)

// Installer handles installation of the catsentry service
type Installer struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	BinaryPath    string
	MigrationsDir string
	ModelsDir     string
	DBPath        string
	DryRun        bool

	// Exec, when set, replaces the executor built from the connection
	// fields. Used by tests to script command responses.
	Exec *deploy.Executor
}

const (
	serviceName      = "catsentry"
	installPath      = "/usr/local/bin/catsentry"
	dataDir          = "/var/lib/catsentry"
	remoteMigrations = "/var/lib/catsentry/migrations"
	remoteModels     = "/var/lib/catsentry/models"
	serviceFile      = "catsentry.service"
	serviceUser      = "catsentry"
	// deviceGroups grants the service user access to the camera, GPIO, and
	// serial relay devices on Raspberry Pi OS.
	deviceGroups   = "video,gpio,dialout"
	serviceContent = `[Unit]
Description=Catsentry camera monitor service
After=network.target

[Service]
User=catsentry
Group=catsentry
Type=simple
ExecStart=/usr/local/bin/catsentry -db /var/lib/catsentry/catsentry.db -polygon /var/lib/catsentry/polygon_coordinates.json -migrations /var/lib/catsentry/migrations
WorkingDirectory=/var/lib/catsentry
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=catsentry

[Install]
WantedBy=multi-user.target
`
)

func (i *Installer) executor() *deploy.Executor {
	if i.Exec != nil {
		return i.Exec
	}
	exec := deploy.NewExecutor(i.Target, i.SSHUser, i.SSHKey, i.IdentityAgent, i.DryRun)
	exec.SetLogger(debugLogger{})
	return exec
}

// Install performs the installation
func (i *Installer) Install() error {
	exec := i.executor()

	fmt.Println("Starting installation of catsentry...")

	// Step 1: Validate binary exists
	if err := i.validateBinary(); err != nil {
		return fmt.Errorf("binary validation failed: %w", err)
	}

	// Step 2: Validate migration files
	if err := i.validateMigrations(); err != nil {
		return fmt.Errorf("migrations validation failed: %w", err)
	}

	// Step 3: Check if already installed
	if installed, err := i.checkExisting(exec); err != nil {
		return fmt.Errorf("failed to check existing installation: %w", err)
	} else if installed {
		fmt.Println("catsentry is already installed. Use 'upgrade' command to update.")
		return nil
	}

	// Step 4: Create service user
	if err := i.createServiceUser(exec); err != nil {
		return fmt.Errorf("failed to create service user: %w", err)
	}

	// Step 5: Create data directory
	if err := i.createDataDirectory(exec); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Step 6: Install binary
	if err := i.installBinary(exec); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}

	// Step 7: Deploy migration files
	if err := i.deployMigrations(exec); err != nil {
		return fmt.Errorf("failed to deploy migrations: %w", err)
	}

	// Step 8: Deploy detector models
	if err := i.deployModels(exec); err != nil {
		return fmt.Errorf("failed to deploy models: %w", err)
	}

	// Step 9: Check for ffmpeg
	if err := i.checkFfmpeg(exec); err != nil {
		return fmt.Errorf("failed to check for ffmpeg: %w", err)
	}

	// Step 10: Install systemd service
	if err := i.installService(exec); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	// Step 11: Seed database if provided
	if i.DBPath != "" {
		if err := i.seedDatabase(exec); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	// Step 12: Start service
	if err := i.startService(exec); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("\n✓ Installation completed successfully!")
	fmt.Println("\nUseful commands:")
	fmt.Println("  Check status:  catsentry-deploy status")
	fmt.Println("  Health check:  catsentry-deploy health")
	fmt.Println("  View logs:     sudo journalctl -u catsentry.service -f")

	return nil
}

func (i *Installer) validateBinary() error {
	fmt.Printf("Validating binary: %s\n", i.BinaryPath)

	if _, err := os.Stat(i.BinaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary not found: %s", i.BinaryPath)
	}

	// Check if binary is executable
	info, err := os.Stat(i.BinaryPath)
	if err != nil {
		return err
	}

	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", i.BinaryPath)
	}

	fmt.Println("  ✓ Binary validated")
	return nil
}

func (i *Installer) validateMigrations() error {
	fmt.Printf("Validating migrations: %s\n", i.MigrationsDir)

	files, err := filepath.Glob(filepath.Join(i.MigrationsDir, "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .sql migration files found in %s (use --migrations to point at the migrations directory)", i.MigrationsDir)
	}

	fmt.Printf("  ✓ Found %d migration files\n", len(files))
	return nil
}

func (i *Installer) checkExisting(exec *deploy.Executor) (bool, error) {
	fmt.Println("Checking for existing installation...")

	// Check if service file exists
	output, err := exec.Run("test -f /etc/systemd/system/catsentry.service && echo 'exists' || echo 'not found'")
	if err != nil {
		return false, err
	}

	if strings.TrimSpace(output) == "exists" {
		return true, nil
	}

	fmt.Println("  ✓ No existing installation found")
	return false, nil
}

func (i *Installer) createServiceUser(exec *deploy.Executor) error {
	fmt.Printf("Creating service user '%s'...\n", serviceUser)

	// Check if user exists
	output, err := exec.Run(fmt.Sprintf("id %s 2>/dev/null && echo 'exists' || echo 'not found'", serviceUser))
	if err != nil {
		return err
	}

	if strings.TrimSpace(output) == "exists" {
		fmt.Printf("  ✓ User '%s' already exists\n", serviceUser)
	} else {
		_, err = exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser))
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Printf("  ✓ User '%s' created\n", serviceUser)
	}

	// Device groups vary by distro, so a failure here is a warning rather
	// than a fatal error.
	if _, err := exec.RunSudo(fmt.Sprintf("usermod -aG %s %s", deviceGroups, serviceUser)); err != nil {
		fmt.Printf("  ⚠ Could not add '%s' to groups %s: %v\n", serviceUser, deviceGroups, err)
		fmt.Println("    Camera, GPIO, or serial access may not work until group membership is fixed")
	} else {
		fmt.Printf("  ✓ User added to groups: %s\n", deviceGroups)
	}

	return nil
}

func (i *Installer) createDataDirectory(exec *deploy.Executor) error {
	fmt.Printf("Creating data directory: %s\n", dataDir)

	_, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s && chown %s:%s %s", dataDir, serviceUser, serviceUser, dataDir))
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ Data directory created\n")
	return nil
}

func (i *Installer) installBinary(exec *deploy.Executor) error {
	fmt.Printf("Installing binary to %s...\n", installPath)

	// Copy binary to remote host if needed
	if err := exec.CopyFile(i.BinaryPath, installPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	// Set permissions
	_, err := exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) deployMigrations(exec *deploy.Executor) error {
	fmt.Printf("Deploying migrations to %s...\n", remoteMigrations)

	count, err := deployMigrationFiles(exec, i.MigrationsDir)
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ %d migration files deployed\n", count)
	return nil
}

// deployMigrationFiles copies every .sql file in localDir to the migrations
// directory on the target and fixes ownership. Shared by install and upgrade.
func deployMigrationFiles(exec *deploy.Executor, localDir string) (int, error) {
	if _, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s", remoteMigrations)); err != nil {
		return 0, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(localDir, "*.sql"))
	if err != nil {
		return 0, err
	}

	for _, file := range files {
		dest := remoteMigrations + "/" + filepath.Base(file)
		if err := exec.CopyFile(file, dest); err != nil {
			return 0, fmt.Errorf("failed to copy %s: %w", filepath.Base(file), err)
		}
	}

	if _, err := exec.RunSudo(fmt.Sprintf("chown -R %s:%s %s", serviceUser, serviceUser, remoteMigrations)); err != nil {
		return 0, fmt.Errorf("failed to set migrations ownership: %w", err)
	}

	return len(files), nil
}

func (i *Installer) deployModels(exec *deploy.Executor) error {
	if i.ModelsDir == "" {
		fmt.Printf("  ⊘ No --models directory provided; place detector weights in %s before detection can run\n", remoteModels)
		return nil
	}

	fmt.Printf("Deploying detector models to %s...\n", remoteModels)

	if _, err := exec.RunSudo(fmt.Sprintf("mkdir -p %s", remoteModels)); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	entries, err := os.ReadDir(i.ModelsDir)
	if err != nil {
		return err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(i.ModelsDir, entry.Name())
		if err := exec.CopyFile(src, remoteModels+"/"+entry.Name()); err != nil {
			return fmt.Errorf("failed to copy %s: %w", entry.Name(), err)
		}
		count++
	}

	if _, err := exec.RunSudo(fmt.Sprintf("chown -R %s:%s %s", serviceUser, serviceUser, remoteModels)); err != nil {
		return fmt.Errorf("failed to set models ownership: %w", err)
	}

	fmt.Printf("  ✓ %d model files deployed\n", count)
	return nil
}

func (i *Installer) checkFfmpeg(exec *deploy.Executor) error {
	fmt.Println("Checking for ffmpeg...")

	output, err := exec.Run("which ffmpeg 2>/dev/null || echo 'missing'")
	if err != nil {
		return err
	}

	if strings.TrimSpace(output) == "missing" {
		fmt.Println("  ⚠ ffmpeg not found; camera capture requires it (sudo apt install ffmpeg)")
		return nil
	}

	fmt.Printf("  ✓ ffmpeg found at %s\n", strings.TrimSpace(output))
	return nil
}

func (i *Installer) installService(exec *deploy.Executor) error {
	fmt.Println("Installing systemd service...")

	// Write service file to temp location
	tempFile := "/tmp/catsentry.service"
	if err := exec.WriteFile(tempFile, serviceContent); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	// Move to systemd directory
	_, err := exec.RunSudo(fmt.Sprintf("mv %s /etc/systemd/system/%s", tempFile, serviceFile))
	if err != nil {
		return fmt.Errorf("failed to install service file: %w", err)
	}

	// Reload systemd
	_, err = exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	// Enable service
	_, err = exec.RunSudo(fmt.Sprintf("systemctl enable %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

func (i *Installer) seedDatabase(exec *deploy.Executor) error {
	fmt.Printf("Seeding database from: %s\n", i.DBPath)

	dbDest := filepath.Join(dataDir, "catsentry.db")

	// Copy database
	if err := exec.CopyFile(i.DBPath, dbDest); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	// Set ownership. The daemon applies any pending schema migrations on
	// its first start.
	_, err := exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbDest))
	if err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}

	fmt.Println("  ✓ Database seeded")
	return nil
}

func (i *Installer) startService(exec *deploy.Executor) error {
	fmt.Printf("Starting %s service...\n", serviceName)

	_, err := exec.RunSudo(fmt.Sprintf("systemctl start %s", serviceName))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	if i.DryRun {
		return nil
	}

	// Wait a moment for service to start
	exec.Run("sleep 2")

	// Check if service is running
	output, err := exec.RunSudo(fmt.Sprintf("systemctl is-active %s", serviceName))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service failed to start properly")
	}

	fmt.Println("  ✓ Service started successfully")
	return nil
}
