// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const greeterManifest = `name: greeter
version: 1.0.0
info: Greets whoever joins
event: join
capabilities:
  - events.emit.greeted
commands:
  - name: shout
    help: Publish the arguments in upper case
    handler: cmd_shout
entry: main.lua
`

const greeterScript = `
function run(who, count)
  plugbus.publish("greeted", "hello " .. who, count)
end

function cmd_shout(...)
  local ok, err = plugbus.publish("shout", string.upper(table.concat({...}, " ")))
  if not ok then
    error(err)
  end
end
`

// writeSource creates dir/name with a manifest and main.lua.
func writeSource(t *testing.T, dir, name, manifest, script string) {
	t.Helper()
	root := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plugin.yaml"), []byte(manifest), 0o600))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "main.lua"), []byte(script), 0o600))
	}
}

type published struct {
	event string
	args  []any
}

type recordingHost struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (h *recordingHost) Publish(_ context.Context, event string, args ...any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, published{event: event, args: args})
	return h.err
}

func (h *recordingHost) Published() []published {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]published(nil), h.events...)
}
