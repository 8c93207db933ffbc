package types

// TLSConfig holds the TLS settings used when dialing wss:// relays
type TLSConfig struct {
	InsecureSkipVerify bool   `mapstructure:"insecure" yaml:"insecure,omitempty"`
	CAFile             string `mapstructure:"ca-file" yaml:"ca-file,omitempty"`   // CA bundle used to verify the relay
	CertFile           string `mapstructure:"cert-file" yaml:"cert-file,omitempty"` // Client certificate (mTLS)
	KeyFile            string `mapstructure:"key-file" yaml:"key-file,omitempty"`  // Client key (mTLS)
}

// IsZero reports whether no TLS option was set
func (t *TLSConfig) IsZero() bool {
	return t == nil || (!t.InsecureSkipVerify && t.CAFile == "" && t.CertFile == "" && t.KeyFile == "")
}
