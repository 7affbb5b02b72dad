package app

import (
	"testing"
)

func TestParseCommand_DefaultsToBrowse(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandBrowse {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandBrowse)
	}
}

func TestParseCommand_Browse(t *testing.T) {
	cmd := ParseCommand([]string{"browse"})
	if cmd != CommandBrowse {
		t.Errorf("ParseCommand([browse]) = %q, want %q", cmd, CommandBrowse)
	}
}

func TestParseCommand_Fetch(t *testing.T) {
	cmd := ParseCommand([]string{"fetch"})
	if cmd != CommandFetch {
		t.Errorf("ParseCommand([fetch]) = %q, want %q", cmd, CommandFetch)
	}
}

func TestParseCommand_Migrate(t *testing.T) {
	cmd := ParseCommand([]string{"migrate"})
	if cmd != CommandMigrate {
		t.Errorf("ParseCommand([migrate]) = %q, want %q", cmd, CommandMigrate)
	}
}

func TestParseCommand_UnknownDefaultsToBrowse(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandBrowse {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandBrowse)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"fetch", "--flag", "value"})
	if cmd != CommandFetch {
		t.Errorf("ParseCommand([fetch --flag value]) = %q, want %q", cmd, CommandFetch)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandBrowse, "browse"},
		{CommandFetch, "fetch"},
		{CommandMigrate, "migrate"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
