// Package dashboard implements the terminal view behind `pyscope watch`.
//
// The dashboard is a Bubble Tea program (Model-Update-View). It owns no
// sampling or inspection logic: it renders the frames published by a
// telemetry.Sampler and the progress events and final report of one
// pipeline.Run.
//
// # Message Flow
//
//  1. waitFrame blocks on the frame subscription and delivers frameMsg
//  2. waitEvent blocks on the run's event channel and delivers eventMsg
//  3. once the event channel closes, runDoneMsg carries the report
//  4. View() re-renders the active tab
//
// Each wait command re-arms itself from Update, so at most one receive per
// source is outstanding.
//
// # Tabs
//
//	Resources   - cpu, memory, read and write graphs with current values
//	Threads     - one graph per thread in its series color
//	Connections - sockets held by the target
//	Files       - open regular files
//	Stacks      - thread stacks captured by the inspection run
//	Objects     - heap summary by type
//	Info        - process details, interpreter version and call graph path
package dashboard
