package plan

import (
	"errors"
	"fmt"
)

// ErrUnpublished is the cause of an attachment whose key was never published.
var ErrUnpublished = errors.New("no task published for key")

// Endpoint is one end of a pending edge: a known node ID or a registry key.
type Endpoint struct {
	id  string
	key *TaskKey
}

// NodeID refers to a node that already exists or will be added before
// finalization.
func NodeID(id string) Endpoint {
	return Endpoint{id: id}
}

// Key refers to the node a collaborator publishes for variant and role.
func Key(variant string, role Role) Endpoint {
	return Endpoint{key: &TaskKey{Variant: variant, Role: role}}
}

func (e Endpoint) String() string {
	if e.key != nil {
		return e.key.String()
	}
	return e.id
}

func (e Endpoint) resolve(r *Registry) (string, error) {
	if e.key == nil {
		return e.id, nil
	}
	id, ok := r.Lookup(*e.key)
	if !ok {
		return "", fmt.Errorf("%w %s", ErrUnpublished, e.key)
	}
	return id, nil
}

// Attachment is a deferred edge: To depends on From. With Inputs set, the
// declared outputs of From also become declared inputs of To, so To reruns
// whenever From produces different content.
type Attachment struct {
	Name   string
	From   Endpoint
	To     Endpoint
	Inputs bool
}

func (a Attachment) String() string {
	return fmt.Sprintf("%s (%s -> %s)", a.Name, a.From, a.To)
}

// AttachmentError is a configuration fault raised while resolving a pending
// attachment.
type AttachmentError struct {
	Attachment Attachment
	Err        error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("resolving attachment %s: %v", e.Attachment, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }
