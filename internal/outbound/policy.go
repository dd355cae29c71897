package outbound

import (
	"fmt"
	"net"
	"strings"
)

// Request is one outbound-call candidate the policy decides on.
type Request struct {
	Scheme string
	Host   string
	Port   int
}

// Policy is the compiled, per-component outbound-host allow-list.
type Policy struct {
	componentID string
	patterns    []Pattern
	// selfComponents lists every component id present in the app, so a
	// service-chaining authority can be checked against it (Open
	// Question 1, spec.md §9: `self` never matches an unknown id).
	selfComponents map[string]bool
}

// CompilePolicy parses every pattern in patterns for componentID.
// Manifest locking only deduplicates the pattern strings, so a malformed
// pattern is first rejected here; factors call this from ConfigureApp,
// where the error fails configuration of the whole app.
func CompilePolicy(componentID string, patterns []string, allComponentIDs []string) (*Policy, error) {
	p := &Policy{componentID: componentID, selfComponents: map[string]bool{}}
	for _, id := range allComponentIDs {
		p.selfComponents[id] = true
	}
	seen := map[string]bool{}
	for _, s := range patterns {
		// Idempotent under duplicates (Open Question 3): a pattern string
		// identical to one already compiled contributes nothing new,
		// matching the dedupe already applied at lock time and keeping
		// evaluation order-independent.
		if seen[s] {
			continue
		}
		seen[s] = true
		compiled, err := ParsePattern(s)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, compiled)
	}
	return p, nil
}

// IsAllowed evaluates req against every compiled pattern (logical OR).
func (p *Policy) IsAllowed(req Request) bool {
	for _, pat := range p.patterns {
		if p.matchPattern(pat, req) {
			return true
		}
	}
	return false
}

func (p *Policy) matchPattern(pat Pattern, req Request) bool {
	if pat.Scheme != "*" && pat.Scheme != normalizeScheme(req.Scheme) {
		return false
	}
	if !p.matchHost(pat, req.Host) {
		return false
	}
	return matchPort(pat, req.Port)
}

// matchHost never grants HostSelf on suffix alone: a valid
// "<component-id>.spin.internal" authority is already special-cased
// through ServiceChainTarget before Check is reached, so here it is
// just another host that must resolve to a real component id in this
// app or be denied like any other candidate (Open Question 1).
func (p *Policy) matchHost(pat Pattern, host string) bool {
	switch pat.HostKind {
	case HostAny:
		return true
	case HostSelf:
		return p.selfServiceChainAuthority(host)
	case HostExact:
		return strings.EqualFold(pat.Host, host)
	case HostSuffix:
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(pat.Host))
	case HostCIDR:
		ip := net.ParseIP(host)
		return ip != nil && pat.CIDR.Contains(ip)
	default:
		return false
	}
}

// selfServiceChainAuthority reports whether host is a service-chaining
// authority naming a component id actually present in this app.
func (p *Policy) selfServiceChainAuthority(host string) bool {
	if !isServiceChainAuthority(host) {
		return false
	}
	id := strings.TrimSuffix(strings.ToLower(host), serviceChainSuffix)
	return p.selfComponents[id]
}

func matchPort(pat Pattern, port int) bool {
	switch pat.PortKind {
	case PortAny:
		return true
	case PortExact:
		return pat.Port == port
	case PortRange:
		return port >= pat.PortLo && port <= pat.PortHi
	default:
		return false
	}
}

const serviceChainSuffix = ".spin.internal"

// isServiceChainAuthority reports whether host is a (possible) service
// chaining authority of the form "<component-id>.spin.internal".
func isServiceChainAuthority(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), serviceChainSuffix)
}

// ServiceChainTarget extracts the target component id from a service
// chaining authority, returning ok=false (and no host-policy grant) when
// the id is not a component present in this app — an unknown
// `.spin.internal` host is never specially allowed, it is just a denied
// normal outbound host (Open Question 1).
func (p *Policy) ServiceChainTarget(host string) (componentID string, ok bool) {
	if !isServiceChainAuthority(host) {
		return "", false
	}
	id := strings.TrimSuffix(strings.ToLower(host), serviceChainSuffix)
	if !p.selfComponents[id] {
		return "", false
	}
	return id, true
}

// ConnectionFailed is returned to the guest for a disallowed outbound
// call, per the HostCallError taxonomy (spec.md §7).
type ConnectionFailed struct {
	Host string
}

func (e *ConnectionFailed) Error() string {
	return fmt.Sprintf("host %q not permitted", e.Host)
}

// DisallowedHostHandler is invoked by Check on every denied call to
// surface an operator-facing diagnostic naming the missing manifest
// entry; repeated denials of the same host invoke it again each time.
type DisallowedHostHandler func(componentID, scheme, host string, port int)

// Check evaluates req and, if denied, invokes handler (when non-nil) and
// returns a *ConnectionFailed. handler is expected to deduplicate across
// repeated denials of the same host itself, since Policy does not track
// cross-call diagnostic history.
func (p *Policy) Check(req Request, handler DisallowedHostHandler) error {
	if p.IsAllowed(req) {
		return nil
	}
	if handler != nil {
		handler(p.componentID, req.Scheme, req.Host, req.Port)
	}
	return &ConnectionFailed{Host: req.Host}
}
