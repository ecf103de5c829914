// Package policy decides, after each review pass, whether the pipeline
// reports out or retries generation. It owns the approval thresholds and the
// forced termination at the iteration cap.
package policy

import (
	"fmt"

	"github.com/rendis/reportpipe/pkg/schema"
)

// Route is the closed set of next moves after a review.
type Route int

const (
	// RouteReport proceeds to document assembly.
	RouteReport Route = iota
	// RouteRetry returns to generation carrying the review feedback.
	RouteRetry
)

func (r Route) String() string {
	switch r {
	case RouteReport:
		return "report"
	case RouteRetry:
		return "retry"
	default:
		return fmt.Sprintf("route(%d)", int(r))
	}
}

// Approval thresholds. The relaxed floor applies only once the iteration
// budget is exhausted, so the pipeline always terminates without shipping
// arbitrarily bad output unmarked.
const (
	normalFloor  = 7.0
	relaxedFloor = 5.0
)

// Controller applies the two-tier approval policy.
type Controller struct{}

// NewController creates an iteration controller.
func NewController() *Controller {
	return &Controller{}
}

// Decide recomputes the verdict's Approved flag from the overall score and
// the iteration position, and returns the route. The producer's own approved
// flag is never trusted. The returned verdict is a copy; raw is not mutated.
func (c *Controller) Decide(raw schema.ReviewVerdict, iteration, maxIterations int) (schema.ReviewVerdict, Route) {
	verdict := raw

	if iteration >= maxIterations {
		// Budget exhausted: report out regardless, with the outcome noted.
		if verdict.OverallScore >= relaxedFloor {
			verdict.Approved = true
			verdict.Feedback += fmt.Sprintf("\n\n[NOTE: approved on reaching the maximum of %d iterations]", maxIterations)
		} else {
			verdict.Approved = false
			verdict.Feedback += fmt.Sprintf("\n\n[WARNING: maximum of %d iterations reached. Report quality is limited.]", maxIterations)
		}
		return verdict, RouteReport
	}

	verdict.Approved = verdict.OverallScore >= normalFloor
	if verdict.Approved {
		return verdict, RouteReport
	}
	return verdict, RouteRetry
}
