package config

// IdentityConfig describes the node signing key used in the HI handshake.
type IdentityConfig struct {
	Alg            string `mapstructure:"alg"`              // ed25519
	PrivateKey     string `mapstructure:"private_key"`      // base64url(no padding) of raw private key bytes
	PrivateKeyFile string `mapstructure:"private_key_file"` // file with base64 or raw bytes; generated if missing
}
