package models

// GrantType is the decision of a grant.
type GrantType string

const (
	GrantAllow GrantType = "allow"
	GrantDeny  GrantType = "deny"
)

// Grant is one authorization decision with its reason.
type Grant struct {
	Type    GrantType `json:"type"`
	Message string    `json:"message"`
}

// Context carries one invocation through the pipeline.
//
// Grants is an audit log. Only the last entry decides, so a stray Deny after
// an Allow revokes access.
type Context struct {
	Parameters Parameters        `json:"parameters"`
	Results    Results           `json:"results"`
	Grants     []Grant           `json:"grants"`
	Token      map[string]any    `json:"token,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Error      error             `json:"-"`
}

// NewContext starts an invocation with parameters.
func NewContext(parameters Parameters) *Context {
	return &Context{Parameters: parameters}
}

// Allow appends an allow grant.
func (c *Context) Allow(message string) {
	c.Grants = append(c.Grants, Grant{Type: GrantAllow, Message: message})
}

// Deny appends a deny grant.
func (c *Context) Deny(message string) {
	c.Grants = append(c.Grants, Grant{Type: GrantDeny, Message: message})
}

// LastGrant returns the deciding grant, if any.
func (c *Context) LastGrant() (Grant, bool) {
	if len(c.Grants) == 0 {
		return Grant{}, false
	}
	return c.Grants[len(c.Grants)-1], true
}

// Allowed reports whether the last grant is an allow.
func (c *Context) Allowed() bool {
	last, ok := c.LastGrant()
	return ok && last.Type == GrantAllow
}
