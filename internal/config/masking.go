package config

import "strings"

// Masked returns a copy of the configuration with secrets masked, suitable
// for printing.
func (c *Config) Masked() Config {
	out := *c
	out.Generator.OpenAI.APIKey = maskSecret(out.Generator.OpenAI.APIKey)
	return out
}

// maskSecret masks a secret for error messages and logs, keeping the first
// and last four characters of sufficiently long values.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) < 8 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
