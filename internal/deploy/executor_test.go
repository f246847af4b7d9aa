package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testLogger struct {
	logs []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) {
	l.logs = append(l.logs, fmt.Sprintf(format, args...))
}

func TestNewExecutor(t *testing.T) {
	e := NewExecutor("host.example.com", "user", "/path/to/key", "/path/to/agent", false)

	if e.Target != "host.example.com" {
		t.Errorf("Expected target host.example.com, got %s", e.Target)
	}
	if e.SSHUser != "user" {
		t.Errorf("Expected user, got %s", e.SSHUser)
	}
	if e.SSHKey != "/path/to/key" {
		t.Errorf("Expected /path/to/key, got %s", e.SSHKey)
	}
	if e.IdentityAgent != "/path/to/agent" {
		t.Errorf("Expected /path/to/agent, got %s", e.IdentityAgent)
	}
	if e.DryRun {
		t.Error("Expected DryRun false")
	}
}

func TestExecutor_IsLocal(t *testing.T) {
	tests := []struct {
		target   string
		expected bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"", true},
		{"remote.example.com", false},
		{"192.168.1.100", false},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			e := NewExecutor(tc.target, "", "", "", false)
			if e.IsLocal() != tc.expected {
				t.Errorf("IsLocal(%s) = %v, want %v", tc.target, e.IsLocal(), tc.expected)
			}
		})
	}
}

func TestExecutor_SetLogger(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	logger := &testLogger{}
	e.SetLogger(logger)

	if _, err := e.Run("echo test"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(logger.logs) == 0 {
		t.Error("Expected debug log entries from Run")
	}

	// SetLogger with nil should not panic or clear the logger
	e.SetLogger(nil)
	if _, err := e.Run("echo again"); err != nil {
		t.Errorf("Unexpected error after SetLogger(nil): %v", err)
	}
}

func TestExecutor_Run_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") {
		t.Errorf("Expected dry-run output, got: %s", output)
	}
	if !strings.Contains(output, "echo hello") {
		t.Errorf("Expected command in output, got: %s", output)
	}
}

func TestExecutor_Run_Local(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(output) != "hello" {
		t.Errorf("Expected 'hello', got: %s", output)
	}
}

func TestExecutor_Run_LocalError(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	if _, err := e.Run("exit 1"); err == nil {
		t.Error("Expected error for failed command")
	}
}

func TestExecutor_RunSudo_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.RunSudo("cat /etc/passwd")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") {
		t.Errorf("Expected dry-run output, got: %s", output)
	}
	if !strings.Contains(output, "sudo") {
		t.Errorf("Expected sudo in output, got: %s", output)
	}
}

func TestExecutor_RunSudo_PrependsSudo(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutor("localhost", "", "", "", false)
	e.SetBuilder(builder)

	if _, err := e.RunSudo("systemctl restart catsentry.service"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Shell() != "sudo systemctl restart catsentry.service" {
		t.Errorf("Unexpected command: %s", last.Shell())
	}
}

func TestExecutor_Run_RemoteSSHArgs(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.Respond = func(name string, args []string) *MockCommandExecutor {
		return &MockCommandExecutor{Output: []byte("active\n")}
	}

	e := NewExecutor("remote.example.com", "testuser", "/path/to/key", "/path/to/agent", false)
	e.SetBuilder(builder)

	output, err := e.Run("systemctl is-active catsentry.service")
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(output) != "active" {
		t.Errorf("Expected 'active', got: %s", output)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Name != "ssh" {
		t.Errorf("Expected ssh command, got: %s", last.Name)
	}

	joined := strings.Join(last.Args, " ")
	if !strings.Contains(joined, "-i /path/to/key") {
		t.Errorf("Expected -i /path/to/key in args: %v", last.Args)
	}
	if !strings.Contains(joined, "IdentityAgent=/path/to/agent") {
		t.Errorf("Expected IdentityAgent option in args: %v", last.Args)
	}
	if !strings.Contains(joined, "StrictHostKeyChecking=no") {
		t.Errorf("Expected StrictHostKeyChecking option in args: %v", last.Args)
	}

	if last.Args[len(last.Args)-2] != "testuser@remote.example.com" {
		t.Errorf("Expected testuser@remote.example.com target, got: %v", last.Args)
	}
	if last.Args[len(last.Args)-1] != "systemctl is-active catsentry.service" {
		t.Errorf("Expected command as final arg, got: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteTargetWithAt(t *testing.T) {
	// A target that already carries user@ must not be prefixed again.
	builder := NewMockCommandBuilder()
	e := NewExecutor("existing@remote.example.com", "ignored", "", "", false)
	e.SetBuilder(builder)

	e.Run("true")

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Args[len(last.Args)-2] != "existing@remote.example.com" {
		t.Errorf("Expected existing@remote.example.com, got: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteNoUser(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutor("remote.example.com", "", "", "", false)
	e.SetBuilder(builder)

	e.Run("true")

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Args[len(last.Args)-2] != "remote.example.com" {
		t.Errorf("Expected bare host target, got: %v", last.Args)
	}
}

func TestExecutor_RunSudo_RemoteWrapsCommand(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutor("remote.example.com", "pi", "", "", false)
	e.SetBuilder(builder)

	e.RunSudo("systemctl stop catsentry.service")

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Name != "ssh" {
		t.Errorf("Expected ssh command, got: %s", last.Name)
	}
	if last.Args[len(last.Args)-1] != "sudo systemctl stop catsentry.service" {
		t.Errorf("Expected sudo-wrapped command, got: %v", last.Args)
	}
}

func TestExecutor_Run_RemoteError(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.Respond = func(name string, args []string) *MockCommandExecutor {
		return &MockCommandExecutor{Output: []byte("connection refused"), Err: errors.New("exit status 255")}
	}

	e := NewExecutor("remote.example.com", "", "", "", false)
	e.SetBuilder(builder)
	logger := &testLogger{}
	e.SetLogger(logger)

	output, err := e.Run("true")
	if err == nil {
		t.Error("Expected error from failed ssh command")
	}
	if !strings.Contains(output, "connection refused") {
		t.Errorf("Expected ssh output to be returned, got: %s", output)
	}

	failLogged := false
	for _, line := range logger.logs {
		if strings.Contains(line, "Command failed") {
			failLogged = true
		}
	}
	if !failLogged {
		t.Error("Expected failure to be debug-logged")
	}
}

func TestExecutor_CopyFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	if err := e.CopyFile("/source/file", "/dest/file"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_CopyFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "source.txt")
	dstPath := filepath.Join(tmpDir, "dest.txt")

	if err := os.WriteFile(srcPath, []byte("test content"), 0644); err != nil {
		t.Fatalf("Failed to create source file: %v", err)
	}

	e := NewExecutor("localhost", "", "", "", false)
	if err := e.CopyFile(srcPath, dstPath); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	content, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("Failed to read destination file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Expected 'test content', got: %s", string(content))
	}
}

func TestExecutor_CopyFile_LocalMissingSrc(t *testing.T) {
	tmpDir := t.TempDir()
	e := NewExecutor("localhost", "", "", "", false)
	err := e.CopyFile(filepath.Join(tmpDir, "nonexistent.txt"), filepath.Join(tmpDir, "dest.txt"))

	if err == nil {
		t.Error("Expected error for missing source file")
	}
}

func TestExecutor_CopyFile_LocalSystemPathUsesSudo(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutor("localhost", "", "", "", false)
	e.SetBuilder(builder)

	if err := e.CopyFile("/tmp/catsentry-new", "/usr/local/bin/catsentry"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("Expected a built command")
	}
	if last.Name != "sudo" {
		t.Errorf("Expected sudo cp for system path, got: %s", last.Name)
	}
	want := []string{"cp", "/tmp/catsentry-new", "/usr/local/bin/catsentry"}
	if len(last.Args) != len(want) {
		t.Fatalf("Unexpected args: %v", last.Args)
	}
	for i, arg := range want {
		if last.Args[i] != arg {
			t.Errorf("Arg %d = %s, want %s", i, last.Args[i], arg)
		}
	}
}

func TestExecutor_CopyFile_RemoteStagesThroughTmp(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutor("remote.example.com", "pi", "/key", "", false)
	e.SetBuilder(builder)

	if err := e.CopyFile("./catsentry", "/usr/local/bin/catsentry"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if len(builder.Commands) != 2 {
		t.Fatalf("Expected scp then ssh mv, got %d commands: %v", len(builder.Commands), builder.Commands)
	}

	scpCmd := builder.Commands[0]
	if scpCmd.Name != "scp" {
		t.Errorf("Expected scp, got: %s", scpCmd.Name)
	}
	joined := strings.Join(scpCmd.Args, " ")
	if !strings.Contains(joined, "./catsentry") {
		t.Errorf("Expected source in scp args: %v", scpCmd.Args)
	}
	if !strings.Contains(joined, "pi@remote.example.com:/tmp/catsentry-copy-") {
		t.Errorf("Expected staged destination in scp args: %v", scpCmd.Args)
	}

	mvCmd := builder.Commands[1]
	if mvCmd.Name != "ssh" {
		t.Errorf("Expected ssh for the move, got: %s", mvCmd.Name)
	}
	moveLine := mvCmd.Args[len(mvCmd.Args)-1]
	if !strings.HasPrefix(moveLine, "sudo mv /tmp/catsentry-copy-") {
		t.Errorf("Expected sudo mv from staging path, got: %s", moveLine)
	}
	if !strings.HasSuffix(moveLine, "/usr/local/bin/catsentry") {
		t.Errorf("Expected final destination in move, got: %s", moveLine)
	}
}

func TestExecutor_WriteFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	if err := e.WriteFile("/tmp/test.txt", "content"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_WriteFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")

	e := NewExecutor("localhost", "", "", "", false)
	if err := e.WriteFile(filePath, "test content"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Expected 'test content', got: %s", string(content))
	}
}

func TestExecutor_WriteFile_RemoteStreamsStdin(t *testing.T) {
	var captured *MockCommandExecutor
	builder := NewMockCommandBuilder()
	builder.Respond = func(name string, args []string) *MockCommandExecutor {
		captured = &MockCommandExecutor{}
		return captured
	}

	e := NewExecutor("remote.example.com", "pi", "", "", false)
	e.SetBuilder(builder)

	if err := e.WriteFile("/tmp/catsentry.service", "[Unit]\nDescription=test\n"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || last.Name != "ssh" {
		t.Fatalf("Expected ssh command, got: %+v", last)
	}
	if last.Args[len(last.Args)-1] != "cat > /tmp/catsentry.service" {
		t.Errorf("Expected cat redirect, got: %v", last.Args)
	}
	if captured == nil || string(captured.Stdin) != "[Unit]\nDescription=test\n" {
		t.Error("Expected file content streamed over stdin")
	}
}

func TestExecutor_PullFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	if err := e.PullFile("/var/lib/catsentry/catsentry.db", "./backup/catsentry.db"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_PullFile_LocalCopiesWithSudo(t *testing.T) {
	builder := NewMockCommandBuilder()

	e := NewExecutor("localhost", "", "", "", false)
	e.SetBuilder(builder)

	if err := e.PullFile("/var/lib/catsentry/catsentry.db", "/tmp/backup.db"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || !last.IsShell {
		t.Fatalf("Expected shell command, got: %+v", last)
	}
	want := "sudo cp /var/lib/catsentry/catsentry.db /tmp/backup.db && chmod 644 /tmp/backup.db"
	if last.Shell() != want {
		t.Errorf("Shell() = %q, want %q", last.Shell(), want)
	}
}

func TestExecutor_PullFile_RemoteStagesThroughTmp(t *testing.T) {
	builder := NewMockCommandBuilder()

	e := NewExecutor("remote.example.com", "pi", "", "", false)
	e.SetBuilder(builder)

	if err := e.PullFile("/var/lib/catsentry/catsentry.db", "./backup/catsentry.db"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if len(builder.Commands) != 3 {
		t.Fatalf("Expected 3 commands (stage, scp, cleanup), got %d: %+v", len(builder.Commands), builder.Commands)
	}

	stage := builder.Commands[0]
	if stage.Name != "ssh" {
		t.Fatalf("Expected ssh stage command, got: %s", stage.Name)
	}
	stageCmd := stage.Args[len(stage.Args)-1]
	if !strings.HasPrefix(stageCmd, "sudo cp /var/lib/catsentry/catsentry.db /tmp/catsentry-pull-") {
		t.Errorf("Unexpected stage command: %s", stageCmd)
	}

	scp := builder.Commands[1]
	if scp.Name != "scp" {
		t.Fatalf("Expected scp command, got: %s", scp.Name)
	}
	joined := strings.Join(scp.Args, " ")
	if !strings.Contains(joined, "pi@remote.example.com:/tmp/catsentry-pull-") {
		t.Errorf("Expected remote temp source in scp args, got: %s", joined)
	}
	if scp.Args[len(scp.Args)-1] != "./backup/catsentry.db" {
		t.Errorf("Expected local destination last, got: %v", scp.Args)
	}

	cleanup := builder.Commands[2]
	cleanupCmd := cleanup.Args[len(cleanup.Args)-1]
	if !strings.HasPrefix(cleanupCmd, "rm -f /tmp/catsentry-pull-") {
		t.Errorf("Unexpected cleanup command: %s", cleanupCmd)
	}
}

func TestLogger_NopLogger(t *testing.T) {
	logger := nopLogger{}
	logger.Debugf("test %s", "message")
}
