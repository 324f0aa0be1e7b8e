package custody

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
)

// stateFile is the persisted wire format. The metadata values are encoded as
// [type, fields] pairs for compatibility with previously written state.
type stateFile struct {
	Info       map[string]string     `json:"info"`
	Parameters map[string]any        `json:"parameters"`
	Graph      graph                 `json:"graph"`
	Meta       map[string]metaRecord `json:"meta"`
}

// MarshalJSON encodes a metaRecord as a [type, fields] pair.
func (m metaRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{m.Type, m.Meta})
}

// UnmarshalJSON decodes the [type, fields] pair form.
func (m *metaRecord) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("custody meta record: %w", err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("custody meta record must be a [type, fields] pair, got %d elements", len(parts))
	}
	if err := json.Unmarshal(parts[0], &m.Type); err != nil {
		return fmt.Errorf("custody meta record type: %w", err)
	}
	if err := json.Unmarshal(parts[1], &m.Meta); err != nil {
		return fmt.Errorf("custody meta record fields: %w", err)
	}
	return nil
}

// Load reads prior custody data from a state file and evaluates parameter
// staleness. A missing file is not an error: the run proceeds with empty
// prior state and stale parameters, so everything rebuilds.
func (c *Custodian) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read custody state %s: %w", path, err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return builderr.StateCorrupt(path, err)
	}

	c.priorParameters = state.Parameters
	c.staleParameters = !parametersEqual(c.parameters, state.Parameters)
	if state.Graph != nil {
		c.priorGraph = state.Graph
	}
	if state.Meta != nil {
		c.priorMeta = state.Meta
	}
	return nil
}

// Dump writes all custody data from the current run to a state file. The
// write goes to a temporary file first and is moved into place with a rename
// so a crash cannot leave truncated state behind.
func (c *Custodian) Dump(path string) error {
	state := stateFile{
		Info:       c.info,
		Parameters: c.parameters,
		Graph:      c.graph,
		Meta:       c.meta,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return builderr.StateWriteFailed(path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return builderr.StateWriteFailed(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return builderr.StateWriteFailed(path, err)
	}
	return nil
}

// parametersEqual compares parameter maps by their canonical JSON encoding.
// Current parameters hold native Go values while prior ones come back from
// JSON decoding; comparing encodings sidesteps int/float64 mismatches.
func parametersEqual(current, prior map[string]any) bool {
	a, err := json.Marshal(current)
	if err != nil {
		return false
	}
	b, err := json.Marshal(prior)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
