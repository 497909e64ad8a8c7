// Package cli implements the pyscope command-line interface.
//
// Every command takes the pid of a running Python process and builds a
// session from the resolved .pyscope.yaml:
//
//	pyscope inspect <pid>   - run every inspection stage and print the result
//	pyscope watch <pid>     - live dashboard, optionally with /metrics
//	pyscope shell <pid>     - evaluate lines inside the target
//	pyscope version         - print build information
//
// openTarget maps the config onto session collaborators: the command runner
// (local or pooled SSH), the OS inspector, the injector channel and the
// artifact directory. The returned target must be closed to remove
// artifacts and drop SSH connections.
//
// Global flags (--config, --verbose, --no-color) are defined on the root
// command and available to all subcommands.
package cli
