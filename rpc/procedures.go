package rpc

// ServiceName is the fully-qualified name of the session service.
const ServiceName = "optenv.v1.SessionService"

// Procedure paths served by NewHandler.
const (
	ProcedureOpen            = "/" + ServiceName + "/Open"
	ProcedureStep            = "/" + ServiceName + "/Step"
	ProcedureReset           = "/" + ServiceName + "/Reset"
	ProcedureFork            = "/" + ServiceName + "/Fork"
	ProcedureClose           = "/" + ServiceName + "/Close"
	ProcedureObserve         = "/" + ServiceName + "/Observe"
	ProcedureState           = "/" + ServiceName + "/State"
	ProcedureRestore         = "/" + ServiceName + "/Restore"
	ProcedureActionSpace     = "/" + ServiceName + "/ActionSpace"
	ProcedureAddBenchmark    = "/" + ServiceName + "/AddBenchmark"
	ProcedureRemoveBenchmark = "/" + ServiceName + "/RemoveBenchmark"
	ProcedureBenchmarks      = "/" + ServiceName + "/Benchmarks"
)
