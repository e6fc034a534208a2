package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions returns the credential option shared by the Pub/Sub and
// BigQuery clients. Inline JSON wins over a key file; neither means ADC.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if inline := strings.TrimSpace(g.CredentialsJSON); inline != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(inline))}
	}
	if path := strings.TrimSpace(g.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
