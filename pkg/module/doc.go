// Package module turns a builder callback into an immutable deployment plan.
//
// A module is declared with Define and a callback. The callback receives a
// Context whose primitives (Contract, Call, StaticCall, ContractAt, Send,
// Library, UseModule) register actions and hand back Futures: opaque handles
// to values that only exist once a runner has executed the action on a
// ledger. Passing a Future into another primitive records a data dependency.
//
// Building runs the callback exactly once, then validates the resulting
// graph (dangling references, duplicate ids, cycles) and freezes it into a
// Module. Nothing is executed and nothing is persisted; executing the plan in
// dependency order and resolving Futures to concrete values is the runner's
// job.
//
//	var Chess = module.Define("Chess", func(m *module.Context) (module.Results, error) {
//		return module.Results{"blockChess": m.Contract("BlockChess", nil)}, nil
//	})
//
//	mod, err := Chess.Build()
//
// Action ids are deterministic: re-running the same callback yields the same
// ids and the same plan hash, which lets a runner correlate plans across
// process invocations.
package module
