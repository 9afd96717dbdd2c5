// Package secret resolves credentials referenced from configuration.
//
// A configured value goes through two steps:
//   - Strict environment expansion (see ExpandEnvStrict): ${VAR} must exist.
//   - Secret references (see Resolver): "secretref:<provider>:<ref>" is
//     replaced by what the named Provider returns. References may stand
//     alone or appear inline ("Bearer secretref:env:API_TOKEN").
//
// Two providers are built in: "env" reads an environment variable and
// "file" reads a file such as a mounted container secret. Both are
// registered in DefaultRegistry.
package secret
