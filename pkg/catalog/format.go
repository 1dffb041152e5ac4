package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/sdnguard/pkg/controller"
	"github.com/Mindburn-Labs/sdnguard/pkg/faults"
	"github.com/Mindburn-Labs/sdnguard/pkg/threatintel"
)

// Report markers.
const (
	MarkSuccess  = "✅"
	MarkWarning  = "⚠️"
	MarkDisabled = "❌"
)

var riskMarkers = map[threatintel.RiskLevel]string{
	threatintel.RiskHigh:   "🔴 **HIGH RISK**",
	threatintel.RiskMedium: "🟡 **MEDIUM RISK**",
	threatintel.RiskLow:    "🟢 **LOW RISK**",
}

type formatter struct {
	controllerEndpoint string
}

func (f formatter) rules(rs *controller.RuleSet) string {
	if rs == nil || rs.Count() == 0 {
		return "### Firewall Rules\n\n**No rules currently configured.**"
	}
	var b strings.Builder
	b.WriteString("### Current Firewall Rules\n\n")
	for _, sw := range rs.Switches {
		fmt.Fprintf(&b, "**Switch:** `%s`\n\n", sw.SwitchID)
		if len(sw.Rules) == 0 {
			b.WriteString("  *No rules*\n")
		}
		for _, r := range sw.Rules {
			action := string(r.Action)
			if action == "" {
				action = "UNKNOWN"
			}
			priority := "N/A"
			if r.Priority != nil {
				priority = fmt.Sprint(*r.Priority)
			}
			fmt.Fprintf(&b, "- **%s** | Source: `%s` → Dest: `%s`", action, orAny(r.Source), orAny(r.Destination))
			if r.Protocol != "" {
				fmt.Fprintf(&b, " | Protocol: %s", r.Protocol)
			}
			fmt.Fprintf(&b, " | Priority: %s\n", priority)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

func (f formatter) installed(res *controller.InstallResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s Firewall Rule Installed\n\n", MarkSuccess)
	fmt.Fprintf(&b, "**Action:** %s\n", res.Rule.Action)
	fmt.Fprintf(&b, "**Source IP:** `%s`\n", res.Rule.Source)
	fmt.Fprintf(&b, "**Destination IP:** `%s`\n", res.Rule.Destination)
	fmt.Fprintf(&b, "**Priority:** %d\n\n", res.Rule.Priority)
	b.WriteString("The rule has been successfully applied to all switches.")
	if len(res.Switches) > 0 {
		b.WriteString("\n\n**Controller response:**\n")
		for _, sw := range res.Switches {
			fmt.Fprintf(&b, "\n- Switch `%s`: %s", sw.SwitchID, sw.Result)
			if sw.Details != "" {
				fmt.Fprintf(&b, " (%s)", sw.Details)
			}
		}
	}
	return b.String()
}

func (f formatter) status(st *controller.NetworkStatus) string {
	var b strings.Builder
	b.WriteString("### Network Status\n\n**Firewall Modules:**\n\n")
	writeStates(&b, st.Modules)
	b.WriteString("\n**Logging Status:**\n\n")
	if st.LoggingErr != nil {
		fmt.Fprintf(&b, "%s Logging status unavailable: %s\n", MarkWarning, detail(st.LoggingErr))
	} else {
		writeStates(&b, st.Logging)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeStates(b *strings.Builder, states []controller.SwitchState) {
	if len(states) == 0 {
		b.WriteString("- *No switches reported*\n")
		return
	}
	for _, s := range states {
		state := MarkDisabled + " Disabled"
		if s.Enabled {
			state = MarkSuccess + " Enabled"
		}
		fmt.Fprintf(b, "- Switch `%s`: %s\n", s.SwitchID, state)
	}
}

func (f formatter) reputation(r *threatintel.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### IP Reputation Report: `%s`\n\n", r.IP)
	fmt.Fprintf(&b, "**Threat Level:** %s\n\n", riskMarkers[r.Level])
	fmt.Fprintf(&b, "- **Abuse Confidence Score:** %d%%\n", r.Score)
	fmt.Fprintf(&b, "- **Total Reports:** %d\n", r.TotalReports)
	if r.DistinctReporters > 0 {
		fmt.Fprintf(&b, "- **Distinct Reporters:** %d\n", r.DistinctReporters)
	}

	country := r.CountryCode
	switch {
	case country == "":
		country = "Unknown"
	case r.CountryName != "":
		country = fmt.Sprintf("%s (%s)", r.CountryCode, r.CountryName)
	}
	fmt.Fprintf(&b, "- **Country:** %s\n", country)
	if r.ISP != "" {
		fmt.Fprintf(&b, "- **ISP:** %s\n", r.ISP)
	}
	if r.UsageType != "" {
		fmt.Fprintf(&b, "- **Usage Type:** %s\n", r.UsageType)
	}
	if r.IsTor {
		b.WriteString("- **Tor Exit Node:** Yes\n")
	}

	whitelisted := "Unknown"
	if r.IsWhitelisted != nil {
		whitelisted = yesNo(*r.IsWhitelisted)
	}
	fmt.Fprintf(&b, "- **Is Whitelisted:** %s\n", whitelisted)

	last := "Never"
	switch {
	case r.LastReportedAt != nil:
		last = r.LastReportedAt.UTC().Format(time.RFC3339)
	case r.LastReportedRaw != "":
		last = r.LastReportedRaw
	}
	fmt.Fprintf(&b, "- **Last Reported:** %s", last)
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// controllerError renders the uniform controller failure reports.
func (f formatter) controllerError(genericTitle string, err error) string {
	switch faults.KindOf(err) {
	case faults.KindTransportTimeout:
		return MarkWarning + " **Error:** Connection to Ryu controller timed out. Is Ryu running?"
	case faults.KindTransportUnreachable:
		return fmt.Sprintf("%s **Error:** Cannot connect to Ryu controller. Please ensure Ryu is running on %s.",
			MarkWarning, f.controllerEndpoint)
	default:
		return fmt.Sprintf("%s **%s:** %s", MarkWarning, genericTitle, detail(err))
	}
}

func (f formatter) installError(err error) string {
	switch faults.KindOf(err) {
	case faults.KindTransportTimeout:
		return f.controllerError("", err) + "\n\n" +
			"The request may have reached the controller before the timeout, so the rule " +
			"may or may not have been applied. Check with get_firewall_rules before retrying."
	case faults.KindRemoteError:
		fe, _ := faults.As(err)
		text := fe.Body
		if text == "" {
			text = fmt.Sprintf("controller returned HTTP %d", fe.Status)
		}
		return fmt.Sprintf("%s **Failed to install rule:** %s", MarkWarning, text)
	case faults.KindArgumentInvalid:
		return f.invalidArgs(ActionInstallFirewallRule, detail(err))
	default:
		return f.controllerError("Error installing rule", err)
	}
}

func (f formatter) reputationError(err error) string {
	fe, _ := faults.As(err)
	switch faults.KindOf(err) {
	case faults.KindConfigurationMissing:
		return fmt.Sprintf("%s **Configuration error:** %s. Set ABUSEIPDB_API_KEY to enable reputation checks.",
			MarkWarning, fe.Detail())
	case faults.KindRemoteError:
		return fmt.Sprintf("%s **HTTP Error checking IP reputation:** %d - %s", MarkWarning, fe.Status, fe.Body)
	case faults.KindTransportTimeout:
		return MarkWarning + " **Error checking IP reputation:** the reputation service timed out."
	default:
		return fmt.Sprintf("%s **Error checking IP reputation:** %s", MarkWarning, detail(err))
	}
}

func (f formatter) invalidArgs(action, msg string) string {
	return fmt.Sprintf("%s **Invalid arguments for `%s`:** %s", MarkWarning, action, msg)
}

func (f formatter) unknownAction(name string, available []string) string {
	return fmt.Sprintf("%s **Unknown action:** `%s`. Available actions: %s.",
		MarkWarning, name, strings.Join(available, ", "))
}

func (f formatter) denied(msg string) string {
	return fmt.Sprintf("%s **Refused by guard policy:** %s", MarkWarning, msg)
}

func detail(err error) string {
	if fe, ok := faults.As(err); ok {
		return fe.Detail()
	}
	return err.Error()
}
