package entities

// Environment keys carried by every generated service. The generator writes
// them and the service-side loader reads them, so both sides share this list.
const (
	EnvGroupID             = "MCP_GROUP_ID"
	EnvUseCustomEntities   = "MCP_USE_CUSTOM_ENTITIES"
	EnvEntitiesDir         = "MCP_ENTITIES_DIR"
	EnvEntities            = "MCP_ENTITIES"
	EnvIncludeRootEntities = "MCP_INCLUDE_ROOT_ENTITIES"
)

// DefaultContainerPath is where the selection mount appears inside the container.
const DefaultContainerPath = "/app/project_entities"

// RequiredEnv lists the keys project environment entries may not replace.
var RequiredEnv = []string{
	EnvGroupID,
	EnvUseCustomEntities,
	EnvEntitiesDir,
	EnvEntities,
	EnvIncludeRootEntities,
}
