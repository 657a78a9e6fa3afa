package handler

import (
	"strings"

	dErrors "ansregistry/pkg/domain-errors"
)

// RegisterRequest is the intake payload for a new agent.
type RegisterRequest struct {
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Host        string   `json:"host"`
	Endpoints   []string `json:"endpoints,omitempty"`
	CSRPEM      string   `json:"csr_pem"`
}

// Validate checks the presence of required fields. Content rules (name
// grammar, CSR parsing) belong to the domain layer.
func (r *RegisterRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.DisplayName) == "" {
		missing = append(missing, "display_name")
	}
	if strings.TrimSpace(r.Version) == "" {
		missing = append(missing, "version")
	}
	if strings.TrimSpace(r.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(r.CSRPEM) == "" {
		missing = append(missing, "csr_pem")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeBadRequest, "missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}
