package types

type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorSystem  ActorType = "system"
	ActorService ActorType = "service"
)

type Actor struct {
	ID    string    `json:"id"`
	Type  ActorType `json:"type"`
	Email string    `json:"email,omitempty"`
	IP    string    `json:"ip,omitempty"`
}

type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CodeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type CodeSnapshot struct {
	Files []CodeFile `json:"files,omitempty"`
}

type Deployment struct {
	Target      string `json:"target,omitempty"`
	Environment string `json:"environment,omitempty"`
	Version     string `json:"version,omitempty"`
}

// OperationContext is the input to policy evaluation. It is ephemeral:
// only a summary of it ends up in the audit record.
type OperationContext struct {
	Operation     string            `json:"operation"`
	Actor         Actor             `json:"actor"`
	Resource      *Resource         `json:"resource,omitempty"`
	Code          *CodeSnapshot     `json:"code,omitempty"`
	Deployment    *Deployment       `json:"deployment,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}
