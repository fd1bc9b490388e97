//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/client"
)

// InitClient loads the config at path and returns a ready, unstarted Client.
func InitClient(path ConfigPath) (*client.Client, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
