// Package deploy provides command execution utilities for installing and
// managing the catsentry service on local and remote hosts.
package deploy

import (
	"bytes"
	"os/exec"
	"strings"
)

// CommandExecutor is a single runnable shell or exec command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// SetStdin sets the stdin for the command.
	SetStdin(stdin []byte)
}

// CommandBuilder constructs CommandExecutors. The Executor routes every
// ssh, scp, and shell invocation through a builder so tests can swap in
// MockCommandBuilder and inspect exactly what would have run.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor for an exec-style invocation.
	BuildCommand(name string, args ...string) CommandExecutor

	// BuildShellCommand creates a CommandExecutor that runs via sh -c.
	BuildShellCommand(command string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// SetStdin sets stdin for the command.
func (r *RealCommandExecutor) SetStdin(stdin []byte) {
	r.cmd.Stdin = bytes.NewReader(stdin)
}

// RealCommandBuilder implements CommandBuilder with exec.Command.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (b *RealCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.Command(name, args...)}
}

// BuildShellCommand creates a CommandExecutor for shell commands.
func (b *RealCommandBuilder) BuildShellCommand(command string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.Command("sh", "-c", command)}
}

// BuiltCommand records one command built through a MockCommandBuilder.
type BuiltCommand struct {
	Name    string
	Args    []string
	IsShell bool
}

// Shell returns the full command line for shell commands, or the empty
// string for exec-style commands.
func (c BuiltCommand) Shell() string {
	if !c.IsShell || len(c.Args) < 2 {
		return ""
	}
	return c.Args[1]
}

// MockCommandExecutor implements CommandExecutor for tests.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Stdin holds the stdin data that was set.
	Stdin []byte
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// SetStdin records the stdin data.
func (m *MockCommandExecutor) SetStdin(stdin []byte) {
	m.Stdin = stdin
}

// MockCommandBuilder implements CommandBuilder for tests. It records every
// built command and answers each one through Respond, falling back to an
// empty successful result when Respond is nil.
type MockCommandBuilder struct {
	// Commands records all commands that were built, in order.
	Commands []BuiltCommand
	// Respond, when set, supplies the executor for each built command.
	Respond func(name string, args []string) *MockCommandExecutor
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand records the command and returns its scripted executor.
func (b *MockCommandBuilder) BuildCommand(name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, BuiltCommand{Name: name, Args: args})
	return b.executorFor(name, args)
}

// BuildShellCommand records the shell command and returns its scripted executor.
func (b *MockCommandBuilder) BuildShellCommand(command string) CommandExecutor {
	args := []string{"-c", command}
	b.Commands = append(b.Commands, BuiltCommand{Name: "sh", Args: args, IsShell: true})
	return b.executorFor("sh", args)
}

func (b *MockCommandBuilder) executorFor(name string, args []string) *MockCommandExecutor {
	if b.Respond != nil {
		if m := b.Respond(name, args); m != nil {
			return m
		}
	}
	return &MockCommandExecutor{}
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *BuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

// ShellHistory returns the command line of every shell command built so
// far, in order. Exec-style commands (ssh, scp) are skipped.
func (b *MockCommandBuilder) ShellHistory() []string {
	var lines []string
	for _, c := range b.Commands {
		if c.IsShell {
			lines = append(lines, c.Shell())
		}
	}
	return lines
}

// CommandHistory returns one line per built command: the command string for
// shell invocations, the remote command string for ssh invocations, and the
// full argv for everything else. This flattens local and remote runs of the
// same operation into comparable lines.
func (b *MockCommandBuilder) CommandHistory() []string {
	lines := make([]string, 0, len(b.Commands))
	for _, c := range b.Commands {
		switch {
		case c.IsShell:
			lines = append(lines, c.Shell())
		case c.Name == "ssh" && len(c.Args) > 0:
			lines = append(lines, c.Args[len(c.Args)-1])
		default:
			lines = append(lines, strings.Join(append([]string{c.Name}, c.Args...), " "))
		}
	}
	return lines
}
