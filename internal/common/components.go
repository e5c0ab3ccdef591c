package common

const (
	ComponentPipeline  = "pipeline"
	ComponentStore     = "store"
	ComponentRanking   = "ranking"
	ComponentRegistrar = "registrar"
	ComponentAPI       = "api"
	ComponentPoller    = "poller"
	ComponentRPC       = "rpc"
)

var AllComponents = map[string]struct{}{
	ComponentPipeline:  {},
	ComponentStore:     {},
	ComponentRanking:   {},
	ComponentRegistrar: {},
	ComponentAPI:       {},
	ComponentPoller:    {},
	ComponentRPC:       {},
}
