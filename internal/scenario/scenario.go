// Package scenario holds the read-only scenario catalog: network topology,
// attack decks, scan artifacts and hint decks. The engine consumes this data
// but never mutates it.
package scenario

type NodeType string

const (
	NodeInternet NodeType = "internet"
	NodeFirewall NodeType = "firewall"
	NodeWAF      NodeType = "waf"
	NodeWeb      NodeType = "web"
	NodeApp      NodeType = "app"
	NodeDB       NodeType = "db"
	NodeAD       NodeType = "ad"
	NodeEndpoint NodeType = "endpoint"
	NodeCloud    NodeType = "cloud"
)

type AttackType string

const (
	AttackRCE         AttackType = "RCE"
	AttackSQLI        AttackType = "SQLi"
	AttackBruteforce  AttackType = "Bruteforce"
	AttackPhishing    AttackType = "Phishing"
	AttackLateralMove AttackType = "LateralMove"
	AttackExfil       AttackType = "Exfil"
)

type ScanTool string

const (
	ToolZAP    ScanTool = "OWASP ZAP"
	ToolNmap   ScanTool = "Nmap"
	ToolSQLMap ScanTool = "SQLMap"
	ToolNikto  ScanTool = "Nikto"
	ToolHIBP   ScanTool = "HaveIBeenPwned"
)

type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	Label  string   `json:"label"`
	Coords Coord    `json:"coords"`
}

type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Topology struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// HasNode reports whether id names a node in the topology.
func (t Topology) HasNode(id string) bool {
	for _, n := range t.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

type Attack struct {
	ID               string     `json:"id"`
	Type             AttackType `json:"attack_type"`
	From             string     `json:"from"`
	To               string     `json:"to"`
	Preconditions    []string   `json:"preconditions,omitempty"`
	AlertCount       int        `json:"alert_count,omitempty"`
	Indicators       []string   `json:"indicators,omitempty"`
	IsCorrectChoice  bool       `json:"is_correct_choice"`
	RequiresScan     bool       `json:"requires_scan"`
	RequiredScanTool ScanTool   `json:"required_scan_tool,omitempty"`
	// SLA budgets; zero means the engine defaults apply.
	DetectSLASeconds  int `json:"detect_sla_sec,omitempty"`
	ContainSLASeconds int `json:"contain_sla_sec,omitempty"`
}

type Hint struct {
	Step     int    `json:"step"`
	Text     string `json:"text"`
	UnlockAt int    `json:"unlock_at"` // seconds into the round
}

// Briefing is the pre-round mission text shown to one side.
type Briefing struct {
	AlertLevel string   `json:"alert_level,omitempty"`
	Summary    string   `json:"summary"`
	Context    string   `json:"context,omitempty"`
	Objectives []string `json:"objectives,omitempty"`
}

type Scenario struct {
	ID               string                         `json:"id"`
	Name             string                         `json:"name"`
	Description      string                         `json:"description"`
	Topology         Topology                       `json:"topology"`
	InitialPosture   map[string]string              `json:"initial_posture,omitempty"`
	Artifacts        map[string]string              `json:"artifacts,omitempty"`
	Attacks          []Attack                       `json:"attacks"`
	HintDeck         []Hint                         `json:"hint_deck,omitempty"`
	RequiredScanTool ScanTool                       `json:"required_scan_tool,omitempty"`
	ScanArtifacts    map[ScanTool]map[string]string `json:"scan_artifacts,omitempty"`
	RedBriefing      *Briefing                      `json:"red_briefing,omitempty"`
	BlueBriefing     *Briefing                      `json:"blue_briefing,omitempty"`
	MaxTurnsPerSide  int                            `json:"max_turns_per_side,omitempty"`
	PivotOptions     []string                       `json:"pivot_options,omitempty"`
	CorrectPivot     string                         `json:"correct_pivot,omitempty"`
}

// AttackByID looks up an attack in the scenario deck.
func (s *Scenario) AttackByID(id string) (Attack, bool) {
	for _, a := range s.Attacks {
		if a.ID == id {
			return a, true
		}
	}
	return Attack{}, false
}

// CorrectAttack returns the attack flagged as the scenario's intended vector.
func (s *Scenario) CorrectAttack() (Attack, bool) {
	for _, a := range s.Attacks {
		if a.IsCorrectChoice {
			return a, true
		}
	}
	return Attack{}, false
}

// ScanLinkedToAttack reports whether any attack in the deck is unlocked by the
// given scan tool. Scans that are linked to an attack but wrong for the
// scenario carry a small penalty; purely informational scans score nothing.
func (s *Scenario) ScanLinkedToAttack(tool ScanTool) bool {
	for _, a := range s.Attacks {
		if a.RequiresScan && a.RequiredScanTool == tool {
			return true
		}
	}
	return false
}

// Catalog is a read-only lookup of scenarios by id.
type Catalog struct {
	scenarios map[string]*Scenario
	order     []string
}

func NewCatalog(scenarios ...*Scenario) *Catalog {
	c := &Catalog{scenarios: make(map[string]*Scenario)}
	for _, s := range scenarios {
		if _, dup := c.scenarios[s.ID]; dup {
			continue
		}
		c.scenarios[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	return c
}

func (c *Catalog) Get(id string) (*Scenario, bool) {
	s, ok := c.scenarios[id]
	return s, ok
}

func (c *Catalog) List() []*Scenario {
	out := make([]*Scenario, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.scenarios[id])
	}
	return out
}
