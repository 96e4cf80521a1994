package leader

// Route is the supervisor's choice of the next node.
type Route string

const (
	RouteExecute  Route = "execute"
	RouteValidate Route = "validate"
)

// ShouldExecuteOrValidate decides whether another step runs. It never
// executes past the step ceiling or past the end of the plan.
func ShouldExecuteOrValidate(s *State, maxSteps int) Route {
	switch {
	case len(s.Progress) >= maxSteps:
		return RouteValidate
	case len(s.Progress) >= len(s.Plan.Steps):
		return RouteValidate
	default:
		return RouteExecute
	}
}
