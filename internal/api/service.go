package api

import (
	"context"

	"github.com/tabchat/tabchat/internal/inference"
	"github.com/tabchat/tabchat/internal/session"
	"github.com/tabchat/tabchat/internal/tabular"
	"github.com/tabchat/tabchat/internal/translator"
)

// SessionService is the subset of the session layer the HTTP handlers use.
type SessionService interface {
	Upload(ctx context.Context, tenantID, filename string, buffer []byte) (*session.Session, error)
	Current(tenantID string) (*session.Session, bool)
	Close(ctx context.Context, tenantID string) bool
	Query(ctx context.Context, tenantID, queryText string) (tabular.QueryResult, error)
	Translate(ctx context.Context, tenantID, question string) (translator.Answer, error)
}

// InferenceBackend is the subset of the inference client the handlers need
// for readiness probing and model discovery.
type InferenceBackend interface {
	Ping(ctx context.Context) error
	ListModels(ctx context.Context) ([]inference.ModelInfo, error)
}
