package engine

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/pewpew-tabletop/range-backend/internal/scenario"
)

type alertTemplate struct {
	Source     string
	Severity   string
	Summary    string
	Details    string
	Confidence float64
	IOC        map[string]string
}

// alertTemplates holds the detection deck per attack type. RCE carries the
// full CVE storyline; the rest are two-alert decks.
var alertTemplates = map[scenario.AttackType][]alertTemplate{
	scenario.AttackRCE: {
		{
			Source: "WAF", Severity: "high",
			Summary:    "POST request to /_api/web with serialized payload",
			Details:    "Suspicious POST request detected with a serialized object payload. User-Agent spoofing detected. Request bypassed WAF signature detection.",
			Confidence: 0.8,
			IOC:        map[string]string{"url": "/_api/web", "method": "POST", "payload_type": "serialized"},
		},
		{
			Source: "IDS", Severity: "critical",
			Summary:    "Command execution pattern detected: cmd.exe spawned by w3wp.exe",
			Details:    "Process cmd.exe spawned by w3wp.exe with encoded PowerShell arguments. Pattern matches known deserialization RCE exploitation.",
			Confidence: 0.9,
			IOC:        map[string]string{"process": "cmd.exe", "parent": "w3wp.exe"},
		},
		{
			Source: "Proxy", Severity: "high",
			Summary:    "Outbound network connection to external IP on port 4444",
			Details:    "Suspicious outbound TCP connection established immediately after the suspicious POST request. Likely reverse shell.",
			Confidence: 0.85,
			IOC:        map[string]string{"dst_port": "4444", "protocol": "TCP"},
		},
		{
			Source: "EDR", Severity: "high",
			Summary:    "File system write detected: backdoor.aspx created in LAYOUTS",
			Details:    "New file created in the SharePoint LAYOUTS directory with a suspicious name pattern.",
			Confidence: 0.75,
			IOC:        map[string]string{"file": "backdoor.aspx"},
		},
	},
	scenario.AttackSQLI: {
		{Source: "WAF", Severity: "medium", Summary: "SQL injection pattern detected", Confidence: 0.9},
		{Source: "DB", Severity: "high", Summary: "Anomalous database query", Confidence: 0.8},
	},
	scenario.AttackBruteforce: {
		{Source: "IDS", Severity: "medium", Summary: "Multiple failed login attempts", Confidence: 0.9},
		{Source: "WAF", Severity: "low", Summary: "Rate limit threshold approached", Confidence: 0.6},
	},
	scenario.AttackPhishing: {
		{Source: "Mail GW", Severity: "medium", Summary: "Suspicious email attachment", Confidence: 0.7},
		{Source: "EDR", Severity: "high", Summary: "Macro execution detected", Confidence: 0.8},
	},
	scenario.AttackLateralMove: {
		{Source: "EDR", Severity: "high", Summary: "Lateral movement via RPC", Confidence: 0.8},
		{Source: "AD", Severity: "critical", Summary: "Privilege escalation detected", Confidence: 0.9},
	},
	scenario.AttackExfil: {
		{Source: "Proxy", Severity: "high", Summary: "Large data transfer to external IP", Confidence: 0.8},
		{Source: "Cloud", Severity: "medium", Summary: "Unauthorized bucket access", Confidence: 0.7},
	},
}

// Base offsets in seconds from launch, per attack type.
var alertIntervals = map[scenario.AttackType][]float64{
	scenario.AttackRCE:         {0, 2, 5, 10, 15},
	scenario.AttackSQLI:        {0, 1, 3},
	scenario.AttackBruteforce:  {0, 2, 5},
	scenario.AttackPhishing:    {0, 3, 8},
	scenario.AttackLateralMove: {0, 5, 10},
	scenario.AttackExfil:       {0, 5, 15},
}

var noiseSources = []string{"IDS", "WAF", "Proxy", "EDR"}
var noiseSeverities = []string{"low", "medium"}

// generateAlerts builds the alert deck for a launched attack. Jitter and
// noise come from a PRNG seeded by (session id, instance id), so replays of
// the same launch produce the same deck.
func generateAlerts(sessionID string, inst *AttackInstance, sc *scenario.Scenario, base time.Duration, includeNoise bool) []Alert {
	r := rand.New(rand.NewSource(alertSeed(sessionID, inst.ID)))

	atk, _ := sc.AttackByID(inst.AttackID)
	templates := alertTemplates[inst.Type]
	if atk.AlertCount > 0 && atk.AlertCount < len(templates) {
		templates = templates[:atk.AlertCount]
	}
	intervals := alertIntervals[inst.Type]

	alerts := make([]Alert, 0, len(templates)+2)
	for i, t := range templates {
		delay := float64(i) * 0.5
		if i < len(intervals) {
			delay = intervals[i]
		}
		jitter := r.Float64() // 0-1s

		ioc := map[string]string{"ip": inst.SourceIP, "target": inst.To}
		for k, v := range t.IOC {
			ioc[k] = v
		}

		// Sparse decks fall back to the attack's declared indicators.
		details := t.Details
		if details == "" && i < len(atk.Indicators) {
			details = atk.Indicators[i]
		}
		if details == "" {
			details = fmt.Sprintf("Attack %s targeting %s", inst.AttackID, inst.To)
		}

		hintRef := ""
		if i < len(sc.HintDeck) {
			hintRef = fmt.Sprintf("hint-%d", sc.HintDeck[i].Step)
		}

		alerts = append(alerts, Alert{
			ID:         fmt.Sprintf("alert-%s-%d", inst.ID, i),
			Source:     t.Source,
			Severity:   t.Severity,
			Summary:    t.Summary,
			Details:    details,
			Confidence: t.Confidence,
			IOC:        ioc,
			HintRef:    hintRef,
			DueElapsed: base + time.Duration((delay+jitter)*float64(time.Second)),
			InstanceID: inst.ID,
		})
	}

	if includeNoise && len(alerts) > 0 {
		// 20-30% benign noise on top of the real deck.
		noiseCount := int(float64(len(alerts)) * (0.2 + 0.1*r.Float64()))
		if noiseCount < 1 {
			noiseCount = 1
		}
		for i := 0; i < noiseCount; i++ {
			alerts = append(alerts, Alert{
				ID:         fmt.Sprintf("noise-%s-%d", inst.ID, i),
				Source:     noiseSources[r.Intn(len(noiseSources))],
				Severity:   noiseSeverities[r.Intn(len(noiseSeverities))],
				Summary:    "Benign traffic anomaly",
				Details:    "False positive alert",
				Confidence: 0.3 + 0.2*r.Float64(),
				Noise:      true,
				DueElapsed: base + time.Duration(r.Float64()*5*float64(time.Second)),
				InstanceID: inst.ID,
			})
		}
	}

	// Stable release order.
	for i := 1; i < len(alerts); i++ {
		for j := i; j > 0 && alerts[j].DueElapsed < alerts[j-1].DueElapsed; j-- {
			alerts[j], alerts[j-1] = alerts[j-1], alerts[j]
		}
	}
	return alerts
}

func alertSeed(sessionID, instanceID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(instanceID))
	return int64(h.Sum64())
}
