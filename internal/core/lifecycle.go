package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their raw YAML section right after New().
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, resolve secrets and publish services
// on the AppContext. Runs after Configure.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their final configuration. Must not mutate state.
type Validator interface {
	Validate() error
}

// Starter modules launch background work once every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper modules release resources. Called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules pick up a new configuration without a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
