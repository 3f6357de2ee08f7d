package model

// Descriptor is the declarative, unresolved form of a connection. Either URL
// or the discrete fields are set, never both.
type Descriptor struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	URL      Value  `json:"url,omitempty"`
	Host     Value  `json:"host,omitempty"`
	Port     Value  `json:"port,omitempty"`
	User     Value  `json:"user,omitempty"`
	Password Value  `json:"-"`
	Endpoint Value  `json:"endpoint,omitempty"`
	Database Value  `json:"database,omitempty"`
	Extras   *Map   `json:"extras,omitempty"`

	Tunnel *TunnelDescriptor `json:"ssh_tunnel,omitempty"`
}

// TunnelDescriptor is the ssh_tunnel sub-document of a connection.
type TunnelDescriptor struct {
	Host          Value `json:"ssh_host"`
	User          Value `json:"ssh_user"`
	Port          Value `json:"ssh_port,omitempty"`
	PrivateKey    Value `json:"ssh_private_key,omitempty"`
	Password      Value `json:"-"`
	PrivateKeyPwd Value `json:"-"`
}

// HasURL reports whether the descriptor uses the URL form.
func (d *Descriptor) HasURL() bool {
	return !d.URL.IsNull()
}

// FieldNames returns the names of the discrete fields that are set.
func (d *Descriptor) FieldNames() []string {
	var out []string
	for _, f := range []struct {
		name string
		v    Value
	}{
		{"host", d.Host},
		{"port", d.Port},
		{"user", d.User},
		{"pwd", d.Password},
		{"endpoint", d.Endpoint},
		{"database", d.Database},
	} {
		if !f.v.IsNull() {
			out = append(out, f.name)
		}
	}
	return out
}

// AsDescriptor converts the tunnel into a descriptor of the internal SSH
// driver so it resolves through the same path as any connection.
func (t *TunnelDescriptor) AsDescriptor(owner string) *Descriptor {
	extras := NewMap()
	if !t.PrivateKey.IsNull() {
		extras.Set("private_key", t.PrivateKey)
	}
	if !t.PrivateKeyPwd.IsNull() {
		extras.Set("private_key_pwd", t.PrivateKeyPwd)
	}
	return &Descriptor{
		Name:     owner + ".ssh_tunnel",
		Type:     "SSH",
		Host:     t.Host,
		Port:     t.Port,
		User:     t.User,
		Password: t.Password,
		Extras:   extras,
	}
}
