package viewer

// Resolver turns a symbolic host name into an IP address, standing in for
// the hosts-directory CSV named in spec §6 as an external collaborator:
// the core consumes this callback and never parses the CSV itself.
type Resolver interface {
	// Resolve returns the IP address for name, preferring the public
	// address when preferPublic is set. ok is false when name is unknown.
	Resolve(name string, preferPublic bool) (ip string, ok bool)
}

// StaticResolver is a Resolver backed by an in-memory table, used in tests
// and as a minimal default when no hosts-directory integration is wired in.
type StaticResolver map[string]HostAddrs

// HostAddrs is one hosts-directory row's address pair.
type HostAddrs struct {
	Private string
	Public  string
}

func (r StaticResolver) Resolve(name string, preferPublic bool) (string, bool) {
	addrs, ok := r[name]
	if !ok {
		return "", false
	}
	if preferPublic && addrs.Public != "" {
		return addrs.Public, true
	}
	if addrs.Private != "" {
		return addrs.Private, true
	}
	return addrs.Public, addrs.Public != ""
}

// SetResolver configures Connect to resolve hostName through r before
// dialing, substituting the resolved IP into the configured video/control
// ports. Call before Connect.
func (c *Client) SetResolver(r Resolver, hostName string, preferPublic bool) {
	c.resolver = r
	c.hostName = hostName
	c.preferPublic = preferPublic
}
