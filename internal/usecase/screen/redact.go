package screen

import "github.com/sanctex-io/sanctex/internal/domain"

// redactedPlaceholder replaces sensitive metadata values in outgoing
// payloads. Screening results are evidence, not an identity lookup;
// full identifiers never leave the service.
const redactedPlaceholder = "***REDACTED***"

var sensitiveMetadataKeys = map[string]bool{
	"ssn":          true,
	"passport":     true,
	"credit_card":  true,
	"bank_account": true,
	"phone":        true,
	"email":        true,
}

// redact masks sensitive metadata in place. Callers pass clones.
func redact(cands []domain.Candidate) {
	for i := range cands {
		for k := range cands[i].Metadata {
			if sensitiveMetadataKeys[k] {
				cands[i].Metadata[k] = redactedPlaceholder
			}
		}
	}
}
