// plugin.go holds the statically registered plugin set.

package client

// Plugin is an optional capability linked into the program and registered
// with WithPlugin. Load runs once at the end of New; Unload runs on Close in
// reverse load order.
type Plugin interface {
	Name() string
	Load(c *Client) error
	Unload()
}

func (c *Client) loadPlugins(plugins []Plugin) {
	c.pluginsByName = make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		name := p.Name()
		if _, dup := c.pluginsByName[name]; dup {
			c.logger.Warn().Str("plugin", name).Msg("plugin registered twice, keeping the first")
			continue
		}
		if err := p.Load(c); err != nil {
			c.logger.Warn().Err(err).Str("plugin", name).Msg("plugin failed to load")
			continue
		}
		c.pluginsByName[name] = p
		c.pluginOrder = append(c.pluginOrder, p)
	}
}

// Plugin returns the loaded plugin registered under name.
func (c *Client) Plugin(name string) (Plugin, bool) {
	p, ok := c.pluginsByName[name]
	return p, ok
}
