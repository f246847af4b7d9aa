package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fenceline/catsentry/internal/deploy"
)

// historyContains reports whether any command line in history contains substr.
func historyContains(history []string, substr string) bool {
	for _, line := range history {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// writeTestBinary creates an executable file suitable for validateBinary.
func writeTestBinary(t *testing.T, dir string) string {
	t.Helper()
	binaryPath := filepath.Join(dir, "catsentry")
	if err := os.WriteFile(binaryPath, []byte("#!/bin/sh\necho test\n"), 0755); err != nil {
		t.Fatalf("Failed to create test binary: %v", err)
	}
	return binaryPath
}

// writeTestMigrations creates a migrations directory with a pair of .sql files.
func writeTestMigrations(t *testing.T, dir string) string {
	t.Helper()
	migrationsDir := filepath.Join(dir, "migrations")
	if err := os.Mkdir(migrationsDir, 0755); err != nil {
		t.Fatalf("Failed to create migrations dir: %v", err)
	}
	for _, name := range []string{"0001_init.up.sql", "0001_init.down.sql"} {
		if err := os.WriteFile(filepath.Join(migrationsDir, name), []byte("-- test migration\n"), 0644); err != nil {
			t.Fatalf("Failed to create migration file: %v", err)
		}
	}
	return migrationsDir
}

func TestInstaller_validateBinary(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name       string
		binaryPath string
		createFile bool
		executable bool
		wantErr    bool
	}{
		{
			name:       "valid executable binary",
			binaryPath: filepath.Join(tmpDir, "valid-binary"),
			createFile: true,
			executable: true,
			wantErr:    false,
		},
		{
			name:       "non-executable file",
			binaryPath: filepath.Join(tmpDir, "non-exec"),
			createFile: true,
			executable: false,
			wantErr:    true,
		},
		{
			name:       "missing file",
			binaryPath: filepath.Join(tmpDir, "missing"),
			createFile: false,
			executable: false,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.createFile {
				content := []byte("#!/bin/sh\necho test\n")
				if err := os.WriteFile(tt.binaryPath, content, 0644); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}

				if tt.executable {
					if err := os.Chmod(tt.binaryPath, 0755); err != nil {
						t.Fatalf("Failed to make file executable: %v", err)
					}
				}
			}

			installer := &Installer{
				BinaryPath: tt.binaryPath,
				DryRun:     false,
			}

			err := installer.validateBinary()
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBinary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstaller_validateMigrations(t *testing.T) {
	tmpDir := t.TempDir()

	withFiles := filepath.Join(tmpDir, "with-files")
	if err := os.Mkdir(withFiles, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(withFiles, "0001_init.up.sql"), []byte("CREATE TABLE t (id);"), 0644); err != nil {
		t.Fatalf("Failed to create migration: %v", err)
	}

	empty := filepath.Join(tmpDir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	tests := []struct {
		name          string
		migrationsDir string
		wantErr       bool
	}{
		{"directory with sql files", withFiles, false},
		{"empty directory", empty, true},
		{"missing directory", filepath.Join(tmpDir, "nope"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installer := &Installer{MigrationsDir: tt.migrationsDir}

			err := installer.validateMigrations()
			if (err != nil) != tt.wantErr {
				t.Errorf("validateMigrations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceContent(t *testing.T) {
	// Verify service file content has required fields
	requiredFields := []string{
		"[Unit]",
		"[Service]",
		"[Install]",
		"User=catsentry",
		"Group=catsentry",
		"ExecStart=/usr/local/bin/catsentry",
		"-db /var/lib/catsentry/catsentry.db",
		"-polygon /var/lib/catsentry/polygon_coordinates.json",
		"-migrations /var/lib/catsentry/migrations",
		"WorkingDirectory=/var/lib/catsentry",
		"Restart=on-failure",
	}

	for _, field := range requiredFields {
		if !strings.Contains(serviceContent, field) {
			t.Errorf("Service file missing required field: %s", field)
		}
	}
}

func TestInstaller_Install_DryRun(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := writeTestBinary(t, tmpDir)
	migrationsDir := writeTestMigrations(t, tmpDir)

	installer := &Installer{
		Target:        "localhost",
		BinaryPath:    binaryPath,
		MigrationsDir: migrationsDir,
		DryRun:        true,
	}

	// Dry-run must walk the whole sequence without touching the system
	if err := installer.Install(); err != nil {
		t.Errorf("Install() dry-run error = %v", err)
	}
}

func TestInstaller_Install_FullSequence(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := writeTestBinary(t, tmpDir)
	migrationsDir := writeTestMigrations(t, tmpDir)

	// A remote target routes every operation through the command builder,
	// so nothing touches the local system.
	exec := deploy.NewExecutor("pi.cam.lan", "pi", "", "", false)
	mock := deploy.NewMockCommandBuilder()

	var serviceWrite *deploy.MockCommandExecutor
	mock.Respond = func(name string, args []string) *deploy.MockCommandExecutor {
		if len(args) == 0 {
			return nil
		}
		cmd := args[len(args)-1]
		switch {
		case strings.Contains(cmd, "test -f /etc/systemd/system/catsentry.service"):
			return &deploy.MockCommandExecutor{Output: []byte("not found\n")}
		case strings.HasPrefix(cmd, "id catsentry"):
			return &deploy.MockCommandExecutor{Output: []byte("not found\n")}
		case strings.Contains(cmd, "which ffmpeg"):
			return &deploy.MockCommandExecutor{Output: []byte("/usr/bin/ffmpeg\n")}
		case strings.Contains(cmd, "cat > /tmp/catsentry.service"):
			serviceWrite = &deploy.MockCommandExecutor{}
			return serviceWrite
		case strings.Contains(cmd, "systemctl is-active"):
			return &deploy.MockCommandExecutor{Output: []byte("active\n")}
		}
		return nil
	}
	exec.SetBuilder(mock)

	installer := &Installer{
		Target:        "pi.cam.lan",
		SSHUser:       "pi",
		BinaryPath:    binaryPath,
		MigrationsDir: migrationsDir,
		Exec:          exec,
	}

	if err := installer.Install(); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	history := mock.CommandHistory()

	wantCommands := []string{
		"sudo useradd --system --no-create-home --shell /usr/sbin/nologin catsentry",
		"sudo usermod -aG video,gpio,dialout catsentry",
		"sudo mkdir -p /var/lib/catsentry && chown catsentry:catsentry /var/lib/catsentry",
		"pi@pi.cam.lan:/tmp/catsentry-copy-",
		"sudo chown root:root /usr/local/bin/catsentry && chmod 0755 /usr/local/bin/catsentry",
		"sudo mkdir -p /var/lib/catsentry/migrations",
		"/var/lib/catsentry/migrations/0001_init.up.sql",
		"sudo chown -R catsentry:catsentry /var/lib/catsentry/migrations",
		"sudo mv /tmp/catsentry.service /etc/systemd/system/catsentry.service",
		"sudo systemctl daemon-reload",
		"sudo systemctl enable catsentry",
		"sudo systemctl start catsentry",
	}
	for _, want := range wantCommands {
		if !historyContains(history, want) {
			t.Errorf("Command history missing %q\nhistory:\n%s", want, strings.Join(history, "\n"))
		}
	}

	// The unit file must stream over ssh stdin, not a quoted command line
	if serviceWrite == nil {
		t.Fatal("Service file was never written")
	}
	if !strings.Contains(string(serviceWrite.Stdin), "ExecStart=/usr/local/bin/catsentry") {
		t.Errorf("Service file stdin missing ExecStart, got: %s", serviceWrite.Stdin)
	}
}

func TestInstaller_Install_AlreadyInstalled(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := writeTestBinary(t, tmpDir)
	migrationsDir := writeTestMigrations(t, tmpDir)

	exec := deploy.NewExecutor("pi.cam.lan", "pi", "", "", false)
	mock := deploy.NewMockCommandBuilder()
	mock.Respond = func(name string, args []string) *deploy.MockCommandExecutor {
		if len(args) == 0 {
			return nil
		}
		cmd := args[len(args)-1]
		if strings.Contains(cmd, "test -f /etc/systemd/system/catsentry.service") {
			return &deploy.MockCommandExecutor{Output: []byte("exists\n")}
		}
		return nil
	}
	exec.SetBuilder(mock)

	installer := &Installer{
		Target:        "pi.cam.lan",
		SSHUser:       "pi",
		BinaryPath:    binaryPath,
		MigrationsDir: migrationsDir,
		Exec:          exec,
	}

	if err := installer.Install(); err != nil {
		t.Fatalf("Install() on installed target should return nil, got %v", err)
	}

	history := mock.CommandHistory()
	if historyContains(history, "useradd") {
		t.Error("Install() on installed target should stop before creating users")
	}
	if historyContains(history, "systemctl start") {
		t.Error("Install() on installed target should not start the service")
	}
}

func TestInstaller_deployModels(t *testing.T) {
	tmpDir := t.TempDir()
	modelsDir := filepath.Join(tmpDir, "models")
	if err := os.Mkdir(modelsDir, 0755); err != nil {
		t.Fatalf("Failed to create models dir: %v", err)
	}
	for _, name := range []string{"yolov4-tiny.weights", "yolov4-tiny.cfg", "coco.names"} {
		if err := os.WriteFile(filepath.Join(modelsDir, name), []byte("model data"), 0644); err != nil {
			t.Fatalf("Failed to create model file: %v", err)
		}
	}

	exec := deploy.NewExecutor("pi.cam.lan", "pi", "", "", false)
	mock := deploy.NewMockCommandBuilder()
	exec.SetBuilder(mock)

	installer := &Installer{Target: "pi.cam.lan", SSHUser: "pi", ModelsDir: modelsDir, Exec: exec}
	if err := installer.deployModels(exec); err != nil {
		t.Fatalf("deployModels() error = %v", err)
	}

	history := mock.CommandHistory()
	for _, want := range []string{
		"sudo mkdir -p /var/lib/catsentry/models",
		"/var/lib/catsentry/models/yolov4-tiny.weights",
		"/var/lib/catsentry/models/coco.names",
		"sudo chown -R catsentry:catsentry /var/lib/catsentry/models",
	} {
		if !historyContains(history, want) {
			t.Errorf("Command history missing %q", want)
		}
	}
}

func TestInstaller_deployModels_SkippedWhenUnset(t *testing.T) {
	exec := deploy.NewExecutor("pi.cam.lan", "pi", "", "", false)
	mock := deploy.NewMockCommandBuilder()
	exec.SetBuilder(mock)

	installer := &Installer{Target: "pi.cam.lan", SSHUser: "pi", Exec: exec}
	if err := installer.deployModels(exec); err != nil {
		t.Fatalf("deployModels() error = %v", err)
	}

	if len(mock.Commands) != 0 {
		t.Errorf("deployModels() without ModelsDir ran %d commands, want 0", len(mock.Commands))
	}
}
