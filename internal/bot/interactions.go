package bot

import (
	"strings"

	"distrack/internal/errs"
)

const customIDSeparator = ":"

const (
	domainTicket = "ticket"

	actionCreate   = "create"
	actionClose    = "close"
	actionReopen   = "reopen"
	actionDelete   = "delete"
	actionCategory = "category"
	actionSubmit   = "submit"
)

// CustomID is the routing key carried by buttons, selects and modals.
type CustomID struct {
	Domain string
	Action string
	Params []string
}

func (c CustomID) String() string {
	parts := append([]string{c.Domain, c.Action}, c.Params...)
	return strings.Join(parts, customIDSeparator)
}

func (c CustomID) Param(i int) string {
	if i < 0 || i >= len(c.Params) {
		return ""
	}
	return c.Params[i]
}

type componentKind int

const (
	kindComponent componentKind = iota
	kindModal
)

// route lists every accepted domain/action pair, the surface it arrives on
// and how many params it carries.
var routes = map[string]struct {
	kind   componentKind
	params int
}{
	domainTicket + customIDSeparator + actionCreate:   {kind: kindComponent},
	domainTicket + customIDSeparator + actionClose:    {kind: kindComponent},
	domainTicket + customIDSeparator + actionReopen:   {kind: kindComponent},
	domainTicket + customIDSeparator + actionDelete:   {kind: kindComponent},
	domainTicket + customIDSeparator + actionCategory: {kind: kindComponent},
	domainTicket + customIDSeparator + actionSubmit:   {kind: kindModal, params: 1},
}

func newCustomID(domain, action string, params ...string) string {
	return CustomID{Domain: domain, Action: action, Params: params}.String()
}

// ParseCustomID rejects anything outside the route table, including known
// actions that arrive on the wrong surface or with the wrong arity.
func ParseCustomID(raw string, kind componentKind) (CustomID, error) {
	parts := strings.Split(raw, customIDSeparator)
	if len(parts) < 2 {
		return CustomID{}, errs.ErrUnknownComponent
	}
	id := CustomID{Domain: parts[0], Action: parts[1], Params: parts[2:]}
	route, ok := routes[id.Domain+customIDSeparator+id.Action]
	if !ok || route.kind != kind || route.params != len(id.Params) {
		return CustomID{}, errs.ErrUnknownComponent
	}
	for _, param := range id.Params {
		if param == "" {
			return CustomID{}, errs.ErrUnknownComponent
		}
	}
	return id, nil
}
