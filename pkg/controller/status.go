package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// SwitchState is the enable/disable state of a feature on one switch.
type SwitchState struct {
	SwitchID string `json:"switch_id"`
	Enabled  bool   `json:"enabled"`
	Raw      string `json:"raw"`
}

// NetworkStatus merges the firewall module and logging states.
type NetworkStatus struct {
	Modules []SwitchState `json:"modules"`
	Logging []SwitchState `json:"logging"`
	// LoggingErr is set when the module query succeeded but the logging
	// query did not.
	LoggingErr error `json:"-"`
}

// NetworkStatus queries /firewall/module/status and /firewall/log/status.
// A failure of the first query fails the call; a failure of the second is
// recorded in LoggingErr so the module states are still reported.
func (c *Client) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	const op = "controller.network_status"

	modules, err := c.states(ctx, op, "/firewall/module/status", "status")
	if err != nil {
		return nil, err
	}
	st := &NetworkStatus{Modules: modules}

	logging, err := c.states(ctx, op, "/firewall/log/status", "log_status")
	if err != nil {
		c.logger.WarnContext(ctx, "logging status unavailable", "error", err)
		st.LoggingErr = err
		return st, nil
	}
	st.Logging = logging
	return st, nil
}

func (c *Client) states(ctx context.Context, op, path, nativeKey string) ([]SwitchState, error) {
	data, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	out, err := parseStates(data, nativeKey)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	return out, nil
}

// parseStates accepts {"<switch>": "enable"} and Ryu's native
// [{"switch_id": ..., "<nativeKey>": "enable"}].
func parseStates(data []byte, nativeKey string) ([]SwitchState, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var bySwitch map[string]json.RawMessage
		if err := json.Unmarshal(data, &bySwitch); err != nil {
			return nil, err
		}
		out := make([]SwitchState, 0, len(bySwitch))
		for id, raw := range bySwitch {
			out = append(out, newState(id, rawString(raw)))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].SwitchID < out[j].SwitchID })
		return out, nil
	}

	var native []map[string]json.RawMessage
	if err := json.Unmarshal(data, &native); err != nil {
		return nil, err
	}
	out := make([]SwitchState, 0, len(native))
	for _, m := range native {
		raw, ok := m[nativeKey]
		if !ok {
			raw = m["status"]
		}
		out = append(out, newState(rawString(m["switch_id"]), rawString(raw)))
	}
	return out, nil
}

func newState(id, raw string) SwitchState {
	return SwitchState{SwitchID: id, Raw: raw, Enabled: strings.EqualFold(raw, "enable")}
}
