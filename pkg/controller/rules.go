package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// Action is the verdict of a firewall rule.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

// Defaults applied by Ryu-facing callers when a rule field is omitted.
const (
	AllSwitches        = "all"
	DefaultDestination = "0.0.0.0/0"
	DefaultPriority    = 1000
	MaxPriority        = 65535
)

// FirewallRule is one entry of a switch's access control list.
// Fields the controller omitted are left empty (or nil for Priority).
type FirewallRule struct {
	RuleID      int    `json:"rule_id,omitempty"`
	Priority    *int   `json:"priority,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Action      Action `json:"action,omitempty"`
}

// SwitchRules is the ordered rule list of one switch.
type SwitchRules struct {
	SwitchID string         `json:"switch_id"`
	Rules    []FirewallRule `json:"rules"`
}

// RuleSet maps switches to their rules, in the order the controller
// reported them (or sorted by switch ID when it reported an object).
type RuleSet struct {
	Switches []SwitchRules `json:"switches"`
}

// Empty reports whether the controller returned no switches at all.
func (rs RuleSet) Empty() bool { return len(rs.Switches) == 0 }

// Count returns the total number of rules across all switches.
func (rs RuleSet) Count() int {
	n := 0
	for _, s := range rs.Switches {
		n += len(s.Rules)
	}
	return n
}

// ListFirewallRules fetches the rules of switchID, or of every switch when
// switchID is empty or "all".
func (c *Client) ListFirewallRules(ctx context.Context, switchID string) (*RuleSet, error) {
	const op = "controller.list_rules"
	if switchID == "" {
		switchID = AllSwitches
	}
	data, err := c.do(ctx, op, http.MethodGet, "/firewall/rules/"+url.PathEscape(switchID), nil)
	if err != nil {
		return nil, err
	}
	rs, err := parseRuleSet(data)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	return rs, nil
}

// parseRuleSet accepts both {"<switch>": [rule...]} and Ryu's native
// [{"switch_id": ..., "access_control_list": [{"rules": [...]}]}].
func parseRuleSet(data []byte) (*RuleSet, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return &RuleSet{}, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var bySwitch map[string][]map[string]any
		if err := json.Unmarshal(data, &bySwitch); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(bySwitch))
		for id := range bySwitch {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rs := &RuleSet{}
		for _, id := range ids {
			rs.Switches = append(rs.Switches, SwitchRules{SwitchID: id, Rules: rulesFrom(bySwitch[id])})
		}
		return rs, nil
	}

	var native []struct {
		SwitchID          json.RawMessage `json:"switch_id"`
		AccessControlList []struct {
			Rules []map[string]any `json:"rules"`
		} `json:"access_control_list"`
	}
	if err := json.Unmarshal(data, &native); err != nil {
		return nil, err
	}
	rs := &RuleSet{}
	for _, sw := range native {
		entry := SwitchRules{SwitchID: rawString(sw.SwitchID), Rules: []FirewallRule{}}
		for _, acl := range sw.AccessControlList {
			entry.Rules = append(entry.Rules, rulesFrom(acl.Rules)...)
		}
		rs.Switches = append(rs.Switches, entry)
	}
	return rs, nil
}

func rulesFrom(raw []map[string]any) []FirewallRule {
	out := make([]FirewallRule, 0, len(raw))
	for _, m := range raw {
		r := FirewallRule{
			Protocol:    stringField(m, "nw_proto", "dl_type"),
			Source:      stringField(m, "nw_src", "ipv6_src"),
			Destination: stringField(m, "nw_dst", "ipv6_dst"),
			Action:      Action(strings.ToUpper(stringField(m, "actions"))),
		}
		if id, ok := intField(m, "rule_id"); ok {
			r.RuleID = id
		}
		if p, ok := intField(m, "priority"); ok {
			r.Priority = &p
		}
		out = append(out, r)
	}
	return out
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}

// rawString renders a JSON scalar (Ryu sends switch IDs as strings, some
// builds as integers) without quotes.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Rule is an installation request.
type Rule struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Action      Action `json:"action"`
	Priority    int    `json:"priority"`
}

// Normalize fills defaults and canonicalises the action's case.
func (r Rule) Normalize() Rule {
	if r.Destination == "" {
		r.Destination = DefaultDestination
	}
	if r.Action == "" {
		r.Action = ActionDeny
	}
	r.Action = Action(strings.ToUpper(string(r.Action)))
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	return r
}

// Validate checks the installation preconditions.
func (r Rule) Validate() error {
	const op = "controller.install_rule"
	if err := validIPv4Prefix(r.Source); err != nil {
		return faults.Wrap(faults.KindArgumentInvalid, op, fmt.Errorf("source: %w", err))
	}
	if err := validIPv4Prefix(r.Destination); err != nil {
		return faults.Wrap(faults.KindArgumentInvalid, op, fmt.Errorf("destination: %w", err))
	}
	if r.Action != ActionAllow && r.Action != ActionDeny {
		return faults.New(faults.KindArgumentInvalid, op,
			fmt.Sprintf("action must be ALLOW or DENY, got %q", r.Action))
	}
	if r.Priority < 1 || r.Priority > MaxPriority {
		return faults.New(faults.KindArgumentInvalid, op,
			fmt.Sprintf("priority must be between 1 and %d, got %d", MaxPriority, r.Priority))
	}
	return nil
}

func validIPv4Prefix(s string) error {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		if _, aerr := netip.ParseAddr(s); aerr == nil {
			return fmt.Errorf("%q is an address, not a CIDR (use %s/32 for a single host)", s, s)
		}
		return fmt.Errorf("%q is not a valid CIDR", s)
	}
	if !p.Addr().Is4() {
		return fmt.Errorf("%q is not an IPv4 network; the controller firewall matches IPv4 only", s)
	}
	return nil
}

// SwitchResult is Ryu's per-switch answer to a rule installation.
type SwitchResult struct {
	SwitchID string `json:"switch_id"`
	Result   string `json:"result"`
	Details  string `json:"details,omitempty"`
}

// InstallResult echoes the installed rule.
type InstallResult struct {
	Rule     Rule           `json:"rule"`
	Switches []SwitchResult `json:"switches,omitempty"`
}

type ruleDocument struct {
	Priority int    `json:"priority"`
	DLType   string `json:"dl_type"`
	NWSrc    string `json:"nw_src"`
	NWDst    string `json:"nw_dst"`
	Actions  Action `json:"actions"`
}

// InstallFirewallRule applies r to all switches. The rule is normalised and
// validated first; invalid rules never reach the controller.
//
// A KindTransportTimeout error does not mean the rule was not applied.
func (c *Client) InstallFirewallRule(ctx context.Context, r Rule) (*InstallResult, error) {
	const op = "controller.install_rule"
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	doc := ruleDocument{
		Priority: r.Priority,
		DLType:   "IPv4",
		NWSrc:    r.Source,
		NWDst:    r.Destination,
		Actions:  r.Action,
	}
	data, err := c.do(ctx, op, http.MethodPost, "/firewall/rules/"+AllSwitches, doc)
	if err != nil {
		return nil, err
	}

	res := &InstallResult{Rule: r, Switches: parseCommandResults(data)}
	for _, sw := range res.Switches {
		if strings.EqualFold(sw.Result, "failure") {
			return nil, faults.Remote(op, http.StatusOK, fmt.Sprintf("switch %s: %s", sw.SwitchID, sw.Details))
		}
	}
	c.logger.InfoContext(ctx, "firewall rule installed",
		"source", r.Source, "destination", r.Destination, "action", r.Action,
		"priority", r.Priority, "switches", len(res.Switches))
	return res, nil
}

// parseCommandResults reads Ryu's
// [{"switch_id": ..., "command_result": [{"result": ..., "details": ...}]}].
// Anything else (including an empty body) yields nil.
func parseCommandResults(data []byte) []SwitchResult {
	var native []struct {
		SwitchID      json.RawMessage `json:"switch_id"`
		CommandResult []struct {
			Result  string `json:"result"`
			Details string `json:"details"`
		} `json:"command_result"`
	}
	if err := json.Unmarshal(data, &native); err != nil {
		return nil
	}
	var out []SwitchResult
	for _, sw := range native {
		for _, cr := range sw.CommandResult {
			out = append(out, SwitchResult{SwitchID: rawString(sw.SwitchID), Result: cr.Result, Details: cr.Details})
		}
	}
	return out
}
