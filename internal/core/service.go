package core

import (
	"claimdesk/internal/blob"
	"claimdesk/pkg/domain"
)

// Services bundles the components the HTTP adapter serves. Every component
// shares the injected stores and options.
type Services struct {
	Contexts  *ContextRegistrar
	Workflows *WorkflowRegistrar
	Claims    *ClaimReader
	Documents *DocumentService
}

// NewServices wires the registrars and reader over rows, and the document
// service over docs when docs is non-nil.
func NewServices(rows domain.RowStore, docs blob.Store, maxDocumentSize int64, opts ...Option) Services {
	svc := Services{
		Contexts:  NewContextRegistrar(rows, opts...),
		Workflows: NewWorkflowRegistrar(rows, opts...),
		Claims:    NewClaimReader(rows, opts...),
	}
	if docs != nil {
		svc.Documents = NewDocumentService(docs, maxDocumentSize, opts...)
	}
	return svc
}
