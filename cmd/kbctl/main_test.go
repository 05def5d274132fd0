package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestCommands(t *testing.T) {
	app := newApp()

	for _, name := range []string{"migrate", "reingest", "approve"} {
		assert.NotNil(t, findCommand(t, app, name))
	}
}

func TestReingestRequiresVersionFlags(t *testing.T) {
	err := newApp().Run([]string{"kbctl", "reingest", "--tenant", "t1", "--document", "d1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestApproveRequiresAdmin(t *testing.T) {
	err := newApp().Run([]string{"kbctl", "approve", "--tenant", "t1", "--document", "d1", "--version", "v1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestApproveFlagsDoNotLeakIntoReingest(t *testing.T) {
	app := newApp()

	for _, f := range findCommand(t, app, "reingest").Flags {
		assert.NotContains(t, f.Names(), "admin")
	}
}
