package scenario

// Default returns the built-in scenario catalog. Scenario data is static and
// shared across sessions; callers must treat it as read-only.
func Default() *Catalog {
	return NewCatalog(nh360SharePoint(), phishingEndpoint())
}

func nh360SharePoint() *Scenario {
	return &Scenario{
		ID:          "scenario-1",
		Name:        "NH360 SharePoint — CVE-2025-53770",
		Description: "Exploitation of CVE-2025-53770 (SharePoint RCE). Attacker exploits a deserialization vulnerability to gain remote code execution, then establishes persistence and attempts data exfiltration.",
		Topology: Topology{
			Nodes: []Node{
				{ID: "internet", Type: NodeInternet, Label: "Internet", Coords: Coord{X: 50, Y: 200}},
				{ID: "waf-1", Type: NodeWAF, Label: "WAF", Coords: Coord{X: 200, Y: 200}},
				{ID: "sharepoint-1", Type: NodeWeb, Label: "SharePoint Server", Coords: Coord{X: 350, Y: 200}},
				{ID: "db-1", Type: NodeDB, Label: "Database", Coords: Coord{X: 500, Y: 200}},
			},
			Links: []Link{
				{From: "internet", To: "waf-1"},
				{From: "waf-1", To: "sharepoint-1"},
				{From: "sharepoint-1", To: "db-1"},
			},
		},
		InitialPosture: map[string]string{
			"waf_mode": "permissive",
			"edr":      "absent",
		},
		Artifacts: map[string]string{
			"nmap":          "PORT     STATE SERVICE\n80/tcp   open  http\n443/tcp  open  https\n1433/tcp filtered mssql",
			"zap":           "Microsoft SharePoint Server 2019 detected\nVulnerability: CVE-2025-53770 (SharePoint RCE via Deserialization)\nConfidence: High\nPath: /_api/* endpoints\nMethod: POST",
			"web_logs":      "POST /_api/web HTTP/1.1 200\nPayload: Serialized malicious object detected\nIP: 198.51.100.7",
			"process_tree":  "PID 1234: w3wp.exe\n  └─ PID 5678: cmd.exe /c 'powershell -enc <base64>'\n  └─ PID 5679: powershell.exe",
			"network_conns": "sharepoint-1:44323 → 198.51.100.7:4444 (ESTABLISHED)\nProcess: powershell.exe\nDirection: Outbound",
		},
		RequiredScanTool: ToolZAP,
		ScanArtifacts: map[ScanTool]map[string]string{
			ToolZAP: {
				"application": "SharePoint Server 2019",
				"endpoints":   "/_api/web, /_api/site, /_api/contextinfo",
				"findings":    "API endpoints accept complex data structures. Object serialization functionality detected in REST API endpoints.",
			},
			ToolNmap: {
				"ports":    "80/tcp open http, 443/tcp open https, 1433/tcp filtered mssql, 8080/tcp open http-proxy",
				"findings": "Proxy service detected on non-standard port 8080.",
			},
			ToolSQLMap: {
				"target":   "/_api/web/lists?$filter=Title eq 'test'",
				"findings": "Primary API endpoints use parameterized queries. No SQL injection detected.",
			},
			ToolNikto: {
				"server":   "Microsoft-IIS/10.0",
				"findings": "Standard SharePoint Server 2019 installation detected.",
			},
		},
		RedBriefing: &Briefing{
			Summary: "Penetrate the NH360 SharePoint server and gain remote code execution.",
			Context: "SharePoint Server 2019 detected. WAF in permissive mode, no EDR, untrusted data deserialization enabled.",
			Objectives: []string{
				"Turn 1: Reconnaissance — scan infrastructure and identify the attack surface",
				"Turn 2: Exploitation — launch the attack vector that gains RCE",
				"Turn 3: Persistence — establish command and control",
				"Turn 4: Pivot — assess success and choose the next move",
			},
		},
		BlueBriefing: &Briefing{
			AlertLevel: "CRITICAL",
			Summary:    "Intelligence indicates active exploitation of CVE-2025-53770 targeting NH360 SharePoint infrastructure.",
			Context:    "Unpatched SharePoint 2019, WAF permissive, no EDR coverage on SharePoint servers.",
			Objectives: []string{
				"Turn 1: Monitor WAF logs for suspicious POST requests with serialized payloads",
				"Turn 2: Watch for w3wp.exe spawning cmd.exe or powershell.exe",
				"Turn 3: Isolate sharepoint-1 if exploitation is detected",
				"Turn 4: Post-incident investigation and persistence hunting",
			},
		},
		Attacks: []Attack{
			{
				ID:   "atk-rce-1",
				Type: AttackRCE,
				From: "internet", To: "sharepoint-1",
				AlertCount: 4,
				Indicators: []string{
					"Process spawn: cmd.exe/powershell.exe spawned by w3wp.exe",
					"Network connection: sharepoint-1 → 198.51.100.7:4444 (reverse shell)",
					"File system: backdoor.aspx created in SharePoint LAYOUTS directory",
				},
				IsCorrectChoice:  true,
				RequiresScan:     true,
				RequiredScanTool: ToolZAP,
			},
			{
				ID:   "atk-sqli-1",
				Type: AttackSQLI,
				From: "internet", To: "sharepoint-1",
				AlertCount:       2,
				Indicators:       []string{"Database query anomalies detected", "SQL injection attempt blocked by parameterized queries"},
				RequiresScan:     true,
				RequiredScanTool: ToolSQLMap,
			},
			{
				ID:   "atk-network-1",
				Type: AttackLateralMove,
				From: "internet", To: "sharepoint-1",
				AlertCount:       3,
				Indicators:       []string{"Unauthorized proxy access on port 8080", "Network traffic anomalies"},
				RequiresScan:     true,
				RequiredScanTool: ToolNmap,
			},
			{
				ID:   "atk-brute-1",
				Type: AttackBruteforce,
				From: "internet", To: "sharepoint-1",
				AlertCount: 2,
				Indicators: []string{"Multiple failed login attempts detected", "Rate limiting triggered"},
			},
		},
		HintDeck: []Hint{
			{Step: 1, Text: "Check WAF logs for suspicious POST requests to /_api/* endpoints with serialized payloads.", UnlockAt: 30},
			{Step: 2, Text: "Correlate outbound connections from sharepoint-1 with process spawn events (w3wp.exe spawning cmd.exe or powershell.exe).", UnlockAt: 120},
			{Step: 3, Text: "Review SharePoint logs for deserialization errors or unexpected .aspx files in the LAYOUTS directory.", UnlockAt: 180},
		},
		MaxTurnsPerSide: 4,
		PivotOptions:    []string{"lateral_movement", "alternative_attack", "verify_persistence"},
		CorrectPivot:    "verify_persistence",
	}
}

func phishingEndpoint() *Scenario {
	return &Scenario{
		ID:          "scenario-2",
		Name:        "Phishing to Endpoint — Macro Dropper",
		Description: "Initial compromise via email: a macro-enabled document delivers a C2 beacon to a user endpoint, with Active Directory reachable for lateral movement.",
		Topology: Topology{
			Nodes: []Node{
				{ID: "internet", Type: NodeInternet, Label: "Internet", Coords: Coord{X: 50, Y: 200}},
				{ID: "mail-gw", Type: NodeFirewall, Label: "Mail Gateway", Coords: Coord{X: 200, Y: 100}},
				{ID: "endpoint-1", Type: NodeEndpoint, Label: "User Endpoint", Coords: Coord{X: 350, Y: 100}},
				{ID: "ad-1", Type: NodeAD, Label: "Active Directory", Coords: Coord{X: 500, Y: 200}},
			},
			Links: []Link{
				{From: "internet", To: "mail-gw"},
				{From: "mail-gw", To: "endpoint-1"},
				{From: "endpoint-1", To: "ad-1"},
			},
		},
		InitialPosture: map[string]string{
			"edr":         "present",
			"mail_filter": "basic",
		},
		Artifacts: map[string]string{
			"nmap":        "No external ports open",
			"email":       "Suspicious attachment: invoice.docm from unknown.sender@example.com",
			"breach_data": "Corporate domain appears in multiple historical data breaches",
		},
		RequiredScanTool: ToolHIBP,
		ScanArtifacts: map[ScanTool]map[string]string{
			ToolHIBP: {
				"breaches": "LinkedIn (2012), Adobe (2013), Dropbox (2012), Yahoo (2013-2014)",
				"findings": "1,247 corporate accounts exposed in historical breaches. High probability of credential reuse.",
			},
			ToolNmap: {
				"ports":    "25/tcp open smtp, 587/tcp open submission, 993/tcp open imaps",
				"findings": "Email services exposed but authentication required.",
			},
			ToolZAP: {
				"target":   "/webmail/login.php",
				"findings": "Macro attachments (.docm, .xlsm) allowed through filtering. Informational only.",
			},
		},
		RedBriefing: &Briefing{
			Summary: "Compromise the corporate network through its weakest link: the user endpoint.",
			Context: "Mail gateway with basic filtering, EDR present but bypassable, users open external attachments.",
			Objectives: []string{
				"Research historical breach exposure for the target domain",
				"Deliver the initial access payload",
				"Establish a command and control beacon",
			},
		},
		BlueBriefing: &Briefing{
			AlertLevel: "CLASSIFIED",
			Summary:    "Threat actors may attempt initial access to endpoints through the email infrastructure.",
			Context:    "Basic mail filtering, EDR on endpoints, historical breach exposure for the corporate domain.",
			Objectives: []string{
				"Monitor email gateway logs for suspicious attachments",
				"Watch EDR for macro execution on endpoint-1",
				"Isolate the endpoint on confirmed compromise",
			},
		},
		Attacks: []Attack{
			{
				ID:   "atk-phish-1",
				Type: AttackPhishing,
				From: "internet", To: "endpoint-1",
				AlertCount: 4,
				Indicators: []string{
					"Email gateway: suspicious attachment delivered (invoice.docm)",
					"EDR: macro execution detected on endpoint-1",
					"Network connection: endpoint-1 → 198.51.100.7:443 (C2 beacon)",
				},
				IsCorrectChoice:  true,
				RequiresScan:     true,
				RequiredScanTool: ToolHIBP,
			},
			{
				ID:   "atk-brute-email-1",
				Type: AttackBruteforce,
				From: "internet", To: "mail-gw",
				AlertCount: 2,
				Indicators: []string{"Multiple failed authentication attempts", "Account lockout triggered"},
			},
			{
				ID:   "atk-lateral-email-1",
				Type: AttackLateralMove,
				From: "internet", To: "endpoint-1",
				AlertCount: 2,
				Indicators: []string{"Unauthorized portal access attempt", "Failed logins from external IP"},
			},
		},
		HintDeck: []Hint{
			{Step: 1, Text: "Check email gateway logs for suspicious attachments.", UnlockAt: 30},
			{Step: 2, Text: "EDR should show macro execution on endpoint-1.", UnlockAt: 90},
			{Step: 3, Text: "Monitor AD for privilege escalation attempts.", UnlockAt: 180},
		},
		PivotOptions: []string{"lateral_movement", "credential_harvest", "exfiltrate"},
		CorrectPivot: "lateral_movement",
	}
}
