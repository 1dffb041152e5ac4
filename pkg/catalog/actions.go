package catalog

import (
	"context"

	"github.com/Mindburn-Labs/sdnguard/pkg/controller"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
)

// Action names.
const (
	ActionGetFirewallRules    = "get_firewall_rules"
	ActionInstallFirewallRule = "install_firewall_rule"
	ActionGetNetworkStatus    = "get_network_status"
	ActionCheckIPReputation   = "check_ip_reputation"
)

// ListRulesArgs are the arguments of get_firewall_rules.
type ListRulesArgs struct {
	SwitchID string `json:"switch_id"`
}

// InstallRuleArgs are the arguments of install_firewall_rule.
type InstallRuleArgs struct {
	Source      string `json:"nw_src"`
	Destination string `json:"nw_dst"`
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
}

// StatusArgs are the (empty) arguments of get_network_status.
type StatusArgs struct{}

// ReputationArgs are the arguments of check_ip_reputation.
type ReputationArgs struct {
	IPAddress string `json:"ip_address"`
}

type definition struct {
	spec Spec
	run  handler
}

func definitions(ctrl Controller, intel Reputation, f formatter) []definition {
	return []definition{
		{
			spec: Spec{
				Name: ActionGetFirewallRules,
				Description: "Get the current firewall rules from the Ryu SDN controller. " +
					"Returns each switch's rules with action, source, destination and priority.",
				Params: []Param{{
					Name:        "switch_id",
					Type:        TypeString,
					Description: "Switch DPID (e.g. '0000000000000001') or 'all' for all switches",
					Default:     controller.AllSwitches,
				}},
			},
			run: bind(func(ctx context.Context, a ListRulesArgs) Result {
				rs, err := ctrl.ListFirewallRules(ctx, a.SwitchID)
				if err != nil {
					return failure(err, f.controllerError("Error querying rules", err))
				}
				return Result{Payload: rs, Report: f.rules(rs)}
			}),
		},
		{
			spec: Spec{
				Name: ActionInstallFirewallRule,
				Description: "Install a firewall rule on all switches to block or allow IPv4 traffic. " +
					"This changes the live network: only call it after the operator has explicitly " +
					"confirmed the exact rule in this conversation.",
				Mutating: true,
				Params: []Param{
					{
						Name:        "nw_src",
						Type:        TypeString,
						Description: "Source network in CIDR notation (e.g. '10.0.0.1/32' for a single host)",
						Required:    true,
					},
					{
						Name:        "nw_dst",
						Type:        TypeString,
						Description: "Destination network in CIDR notation (default: any)",
						Default:     controller.DefaultDestination,
					},
					{
						Name:        "action",
						Type:        TypeString,
						Description: "DENY or ALLOW",
						Default:     string(controller.ActionDeny),
						Pattern:     "^(?i)(allow|deny)$",
					},
					{
						Name:        "priority",
						Type:        TypeInteger,
						Description: "Rule priority (higher = more important)",
						Default:     controller.DefaultPriority,
						Minimum:     intPtr(1),
						Maximum:     intPtr(controller.MaxPriority),
					},
				},
			},
			run: bind(func(ctx context.Context, a InstallRuleArgs) Result {
				res, err := ctrl.InstallFirewallRule(ctx, controller.Rule{
					Source:      a.Source,
					Destination: a.Destination,
					Action:      controller.Action(a.Action),
					Priority:    a.Priority,
				})
				if err != nil {
					return failure(err, f.installError(err))
				}
				return Result{Payload: res, Report: f.installed(res)}
			}),
		},
		{
			spec: Spec{
				Name: ActionGetNetworkStatus,
				Description: "Get the firewall module state (enabled/disabled) and the logging state " +
					"of every switch connected to the controller.",
			},
			run: bind(func(ctx context.Context, _ StatusArgs) Result {
				st, err := ctrl.NetworkStatus(ctx)
				if err != nil {
					return failure(err, f.controllerError("Error getting status", err))
				}
				return Result{Payload: st, Report: f.status(st)}
			}),
		},
		{
			spec: Spec{
				Name: ActionCheckIPReputation,
				Description: "Check whether an IP address is malicious using AbuseIPDB threat intelligence " +
					"(90-day lookback). Returns the abuse confidence score and a HIGH/MEDIUM/LOW risk level.",
				Params: []Param{{
					Name:        "ip_address",
					Type:        TypeString,
					Description: "IPv4 or IPv6 address to check (e.g. '192.168.1.50')",
					Required:    true,
				}},
			},
			run: bind(func(ctx context.Context, a ReputationArgs) Result {
				rep, err := intel.CheckReputation(ctx, a.IPAddress)
				if err != nil {
					return failure(err, f.reputationError(err))
				}
				return Result{Payload: rep, Report: f.reputation(rep)}
			}),
		},
	}
}

func failure(err error, report string) Result {
	fe, ok := faults.As(err)
	if !ok {
		fe = &faults.Error{Kind: faults.KindUnknown, Err: err}
	}
	return Result{Payload: fe.Detail(), Report: report, Fault: fe}
}
