package zabbix

import (
	"regexp"
	"strconv"
)

// Priority is a Zabbix trigger severity
type Priority int

const (
	PriorityNotClassified Priority = iota
	PriorityInformation
	PriorityWarning
	PriorityAverage
	PriorityHigh
	PriorityDisaster
)

var priorityLabels = [...]string{
	PriorityNotClassified: "Not classified",
	PriorityInformation:   "Information",
	PriorityWarning:       "Warning",
	PriorityAverage:       "Average",
	PriorityHigh:          "High",
	PriorityDisaster:      "Disaster",
}

func (p Priority) String() string {
	if p < PriorityNotClassified || p > PriorityDisaster {
		return priorityLabels[PriorityNotClassified]
	}
	return priorityLabels[p]
}

// ParsePriority converts the numeric API code; unknown codes map to Not classified
func ParsePriority(code string) Priority {
	n, err := strconv.Atoi(code)
	if err != nil || n < int(PriorityNotClassified) || n > int(PriorityDisaster) {
		return PriorityNotClassified
	}
	return Priority(n)
}

// TriggerRecord is a normalized trigger in problem state
type TriggerRecord struct {
	TriggerID   string
	Hostname    string
	Description string
	Priority    Priority
	PrevValue   string
}

// HostRecord is a normalized monitored host
type HostRecord struct {
	HostID      string
	Hostname    string
	Description string
	Status      string
}

// HostItemValues holds the latest values of the requested item keys on one host
type HostItemValues struct {
	Host   string
	Values map[string]string
}

// Acknowledgement is the outcome of acknowledging a trigger's latest event
type Acknowledgement struct {
	TriggerID string
	EventID   string
	Result    string // backend confirmation or rejection text
	Rejected  bool
}

// hostStatus renders the host.get status code
func hostStatus(code string) string {
	switch code {
	case "0":
		return "monitored"
	case "1":
		return "unmonitored"
	default:
		return code
	}
}

var hostPlaceholder = regexp.MustCompile(`\{HOST\.(?:HOST|NAME)\}`)

// SetDescriptionPlaceholders substitutes {HOST.HOST} and {HOST.NAME} with hostname
func SetDescriptionPlaceholders(description, hostname string) string {
	return hostPlaceholder.ReplaceAllLiteralString(description, hostname)
}

type apiHost struct {
	HostID      string `json:"hostid"`
	Host        string `json:"host"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (h apiHost) displayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Host
}

type apiItem struct {
	ItemID    string `json:"itemid"`
	HostID    string `json:"hostid"`
	Key       string `json:"key_"`
	LastValue string `json:"lastvalue"`
	PrevValue string `json:"prevvalue"`
}

type apiTrigger struct {
	TriggerID   string    `json:"triggerid"`
	Description string    `json:"description"`
	Priority    string    `json:"priority"`
	Value       string    `json:"value"`
	Hosts       []apiHost `json:"hosts"`
	Items       []apiItem `json:"items"`
}

type apiEvent struct {
	EventID string `json:"eventid"`
	Clock   string `json:"clock"`
}

type apiHostGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name"`
}
