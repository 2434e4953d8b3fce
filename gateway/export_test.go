package gateway

var (
	ResolveKeyFile = resolveKeyFile
	Classify       = classify
)
