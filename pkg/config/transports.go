package config

// TransportConfig describes one transport kind and its endpoints.
// Example YAML:
//
//	transports:
//	  - kind: tcp
//	    listen: [":8888"]
//	    dial:
//	      - address: "10.0.0.2:8888"
//	        peer_id: "node-2"
//	  - kind: quic
//	    listen: [":4433"]
//	  - kind: mem
//	    listen: ["inproc://test"]
type TransportConfig struct {
	Kind   string           `mapstructure:"kind"`
	Listen []string         `mapstructure:"listen"`
	Dial   []PeerDialConfig `mapstructure:"dial"`
	// Cost overrides the default link cost of this transport kind when > 0.
	Cost float64 `mapstructure:"cost"`
}

// PeerDialConfig describes a target to dial on startup.
type PeerDialConfig struct {
	Address string `mapstructure:"address"`
	PeerID  string `mapstructure:"peer_id"`
}
