package deploy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger defines the interface for debug logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// nopLogger is a no-op logger implementation.
type nopLogger struct{}

func (n nopLogger) Debugf(format string, args ...interface{}) {}

// Executor handles command execution on local or remote targets. Remote
// targets are reached over ssh/scp; local commands run via sh -c. All
// invocations go through the CommandBuilder so tests can script them.
type Executor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool
	Logger        Logger

	builder CommandBuilder
}

// NewExecutor creates a new command executor.
func NewExecutor(target, sshUser, sshKey, identityAgent string, dryRun bool) *Executor {
	return &Executor{
		Target:        target,
		SSHUser:       sshUser,
		SSHKey:        sshKey,
		IdentityAgent: identityAgent,
		DryRun:        dryRun,
		Logger:        nopLogger{},
		builder:       NewRealCommandBuilder(),
	}
}

// SetLogger sets the debug logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// SetBuilder replaces the command builder. Used by tests to substitute a
// MockCommandBuilder.
func (e *Executor) SetBuilder(builder CommandBuilder) {
	if builder != nil {
		e.builder = builder
	}
}

// IsLocal returns true if target is localhost.
func (e *Executor) IsLocal() bool {
	return e.Target == "localhost" || e.Target == "127.0.0.1" || e.Target == ""
}

// Run executes a command.
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", command), nil
	}

	e.Logger.Debugf("Executing: %s (target=%s, local=%v)", command, e.Target, e.IsLocal())

	output, err := e.run(command)
	if err != nil {
		e.Logger.Debugf("Command failed: %v, output: %s", err, output)
	}
	return output, err
}

// RunSudo executes a command with sudo.
func (e *Executor) RunSudo(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute (sudo): %s", command), nil
	}

	e.Logger.Debugf("Executing (sudo): %s (target=%s, local=%v)", command, e.Target, e.IsLocal())

	output, err := e.run(fmt.Sprintf("sudo %s", command))
	if err != nil {
		e.Logger.Debugf("Sudo command failed: %v, output: %s", err, output)
	}
	return output, err
}

func (e *Executor) run(command string) (string, error) {
	var cmd CommandExecutor
	if e.IsLocal() {
		cmd = e.builder.BuildShellCommand(command)
	} else {
		cmd = e.builder.BuildCommand("ssh", e.sshArgs(command)...)
	}
	output, err := cmd.Run()
	return string(output), err
}

// CopyFile copies a file to the target.
func (e *Executor) CopyFile(src, dst string) error {
	if e.DryRun {
		return nil
	}

	e.Logger.Debugf("Copying file: %s -> %s (target=%s, local=%v)", src, dst, e.Target, e.IsLocal())

	var err error
	if e.IsLocal() {
		err = e.copyLocal(src, dst)
	} else {
		err = e.copySCP(src, dst)
	}

	if err != nil {
		e.Logger.Debugf("Copy failed: %v", err)
	}
	return err
}

// WriteFile writes content to a file on the target.
func (e *Executor) WriteFile(path, content string) error {
	if e.DryRun {
		return nil
	}

	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0644)
	}

	// Stream the content over ssh stdin rather than quoting it into a
	// command line.
	cmd := e.builder.BuildCommand("ssh", e.sshArgs(fmt.Sprintf("cat > %s", path))...)
	cmd.SetStdin([]byte(content))

	if output, err := cmd.Run(); err != nil {
		return fmt.Errorf("ssh write failed: %w, output: %s", err, output)
	}
	return nil
}

// sshOptions returns the identity and host key options shared by ssh and scp.
//
// WARNING: StrictHostKeyChecking and known_hosts verification are disabled,
// which leaves connections open to MITM. Suitable only for automation in
// trusted networks; configure known_hosts properly for anything else.
func (e *Executor) sshOptions() []string {
	args := []string{}

	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	if e.IdentityAgent != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}

	args = append(args, "-o", "StrictHostKeyChecking=no")
	args = append(args, "-o", "UserKnownHostsFile=/dev/null")
	args = append(args, "-o", "LogLevel=ERROR")

	return args
}

// sshTarget returns the user@host form, leaving targets that already carry
// a user untouched.
func (e *Executor) sshTarget() string {
	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	return target
}

func (e *Executor) sshArgs(command string) []string {
	return append(e.sshOptions(), e.sshTarget(), command)
}

func (e *Executor) copyLocal(src, dst string) error {
	// System directories need sudo. /var/folders is the macOS temp tree,
	// not a system path.
	needsSudo := strings.HasPrefix(dst, "/usr") ||
		strings.HasPrefix(dst, "/etc") ||
		(strings.HasPrefix(dst, "/var") && !strings.HasPrefix(dst, "/var/folders"))

	if needsSudo {
		if output, err := e.builder.BuildCommand("sudo", "cp", src, dst).Run(); err != nil {
			return fmt.Errorf("sudo cp failed: %w, output: %s", err, output)
		}
		return nil
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func (e *Executor) copySCP(src, dst string) error {
	// Stage in /tmp first, then move into place with sudo when the
	// destination is a system path the ssh user cannot write.
	tempPath := fmt.Sprintf("/tmp/catsentry-copy-%d", time.Now().UnixNano())

	args := append(e.sshOptions(), src, fmt.Sprintf("%s:%s", e.sshTarget(), tempPath))
	e.Logger.Debugf("SCP command: scp %v", args)
	if output, err := e.builder.BuildCommand("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w, output: %s", err, output)
	}

	move := fmt.Sprintf("mv %s %s", tempPath, dst)
	if strings.HasPrefix(dst, "/usr") || strings.HasPrefix(dst, "/etc") || strings.HasPrefix(dst, "/var") {
		_, err := e.RunSudo(move)
		return err
	}
	_, err := e.Run(move)
	return err
}

// PullFile copies a file from the target to the local machine. Remote files
// are staged through /tmp with relaxed permissions so scp can read them
// without root on the far side.
func (e *Executor) PullFile(src, dst string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would pull: %s -> %s\n", src, dst)
		return nil
	}

	e.Logger.Debugf("Pulling file: %s -> %s (target=%s, local=%v)", src, dst, e.Target, e.IsLocal())

	if e.IsLocal() {
		output, err := e.RunSudo(fmt.Sprintf("cp %s %s && chmod 644 %s", src, dst, dst))
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w, output: %s", src, err, output)
		}
		return nil
	}

	tempPath := fmt.Sprintf("/tmp/catsentry-pull-%d", time.Now().UnixNano())
	output, err := e.RunSudo(fmt.Sprintf("cp %s %s && chmod 644 %s", src, tempPath, tempPath))
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w, output: %s", src, err, output)
	}

	args := append(e.sshOptions(), fmt.Sprintf("%s:%s", e.sshTarget(), tempPath), dst)
	e.Logger.Debugf("SCP command: scp %v", args)
	if out, err := e.builder.BuildCommand("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w, output: %s", err, out)
	}

	e.Run(fmt.Sprintf("rm -f %s", tempPath))
	return nil
}
