package model

import "time"

const (
	OpInstall     = "install"
	OpUninstall   = "uninstall"
	OpExtension   = "extension"
	OpDeploy      = "deploy"
	OpCertificate = "certificate"
)

// Operation tracks a long-running task accepted by the API. Progress only
// ever increases.
type Operation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	State     string    `json:"state"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the operation reached a terminal state.
func (o *Operation) Done() bool {
	return o.State == StatusSucceeded || o.State == StatusFailed || o.State == StatusCancelled
}
