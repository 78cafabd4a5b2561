// Package acl evaluates command access-control rules for audited sessions.
//
// A rule set arrives with the session's auth info and is immutable for the
// session's lifetime. Rules are consulted before every command: the first
// matching rule in priority order decides whether the command runs and what
// risk level its audit record carries.
package acl

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Action is what a matching rule does with the command.
type Action int

const (
	ActionReject Action = iota
	ActionAccept
	ActionReview
	ActionWarning
	ActionUnknown
)

func (a Action) String() string {
	switch a {
	case ActionReject:
		return "reject"
	case ActionAccept:
		return "accept"
	case ActionReview:
		return "review"
	case ActionWarning:
		return "warning"
	}
	return "unknown"
}

// ParseAction maps the wire string to an Action. Unrecognized values map
// to ActionUnknown, which never blocks a command.
func ParseAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return ActionReject
	case "accept":
		return ActionAccept
	case "review":
		return ActionReview
	case "warning":
		return ActionWarning
	}
	return ActionUnknown
}

// RiskLevel classifies an audited command.
type RiskLevel int

const (
	RiskNormal RiskLevel = iota
	RiskWarning
	RiskReject
	RiskReviewReject
	RiskReviewAccept
	RiskReviewCancel
)

func (r RiskLevel) String() string {
	switch r {
	case RiskNormal:
		return "normal"
	case RiskWarning:
		return "warning"
	case RiskReject:
		return "reject"
	case RiskReviewReject:
		return "review_reject"
	case RiskReviewAccept:
		return "review_accept"
	case RiskReviewCancel:
		return "review_cancel"
	}
	return "normal"
}

// GroupTypeCommand matches whole command words; GroupTypeRegex matches a
// regular expression against the full input line.
const (
	GroupTypeCommand = "command"
	GroupTypeRegex   = "regex"
)

// CommandGroup is one pattern bundle inside a rule.
type CommandGroup struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Content    string `json:"content" yaml:"content"`
	Pattern    string `json:"pattern" yaml:"pattern"`
	IgnoreCase bool   `json:"ignore_case" yaml:"ignore_case"`

	once sync.Once
	re   *regexp.Regexp
	err  error
}

// compile builds the group's matcher exactly once.
//
// Regex groups use Pattern verbatim. Command groups treat Content as a
// whitespace-separated list of command words; a word matches when it appears
// as a standalone token anywhere in the input line.
func (g *CommandGroup) compile() (*regexp.Regexp, error) {
	g.once.Do(func() {
		expr := g.Pattern
		if g.Type != GroupTypeRegex {
			words := strings.Fields(g.Content)
			if len(words) == 0 {
				g.err = fmt.Errorf("acl group %q: empty content", g.Name)
				return
			}
			quoted := make([]string, len(words))
			for i, w := range words {
				quoted[i] = regexp.QuoteMeta(w)
			}
			expr = `(^|\s)(` + strings.Join(quoted, "|") + `)(\s|$)`
		}
		if g.IgnoreCase {
			expr = "(?i)" + expr
		}
		g.re, g.err = regexp.Compile(expr)
	})
	return g.re, g.err
}

// Match reports whether the command matches this group. Groups that fail to
// compile never match.
func (g *CommandGroup) Match(command string) bool {
	re, err := g.compile()
	if err != nil {
		return false
	}
	return re.MatchString(command)
}

// Rule is one access-control rule. Lower Priority wins.
type Rule struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Priority int             `json:"priority" yaml:"priority"`
	Action   Action          `json:"action" yaml:"action"`
	IsActive bool            `json:"is_active" yaml:"is_active"`
	Groups   []*CommandGroup `json:"command_groups" yaml:"command_groups"`
}

// RuleSet is the ordered collection of rules for one session.
type RuleSet []*Rule

// Decision is the outcome of evaluating a command against a rule set.
type Decision struct {
	Rule       *Rule // nil when no rule matched
	Action     Action
	Risk       RiskLevel
	IsContinue bool
	Reason     string
}

// Evaluate runs the command through the rule set. Active rules are tried in
// ascending priority order; the first rule with a matching group decides.
// An empty rule set, or no match, means default-allow at RiskNormal.
//
// Review matches stop execution: there is no ticket-approval service in this
// agent, so review falls back to reject with a distinct risk level.
func (rs RuleSet) Evaluate(command string) Decision {
	command = strings.TrimSpace(command)

	ordered := make([]*Rule, 0, len(rs))
	for _, r := range rs {
		if r != nil && r.IsActive {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, rule := range ordered {
		for _, group := range rule.Groups {
			if group == nil || !group.Match(command) {
				continue
			}
			d := Decision{Rule: rule, Action: rule.Action}
			switch rule.Action {
			case ActionReject:
				d.Risk = RiskReject
				d.IsContinue = false
				d.Reason = fmt.Sprintf("command rejected by rule %q", rule.Name)
			case ActionWarning:
				d.Risk = RiskWarning
				d.IsContinue = true
				d.Reason = fmt.Sprintf("command flagged by rule %q", rule.Name)
			case ActionReview:
				d.Risk = RiskReviewReject
				d.IsContinue = false
				d.Reason = fmt.Sprintf("command requires review per rule %q", rule.Name)
			default:
				d.Risk = RiskNormal
				d.IsContinue = true
			}
			return d
		}
	}

	return Decision{Action: ActionAccept, Risk: RiskNormal, IsContinue: true}
}
